// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/LeeDigitalWorks/zapload/pkg/api/apitypes"
	"github.com/LeeDigitalWorks/zapload/pkg/client"
	"github.com/LeeDigitalWorks/zapload/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultServerURL = "http://localhost:8090"

var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a file in parallel parts",
	Long: `Upload FILE to a zapload server. The file is split into parts that are
sent concurrently and assembled once every part is committed. With
--keep_on_failure a failed upload stays open and can be continued with
"zapload resume".`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var resumeCmd = &cobra.Command{
	Use:   "resume FILE",
	Short: "Continue an upload session left open by a failed upload",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var partsCmd = &cobra.Command{
	Use:   "parts",
	Short: "List the committed parts of an upload session",
	Args:  cobra.NoArgs,
	RunE:  runParts,
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abort an upload session and discard its parts",
	Args:  cobra.NoArgs,
	RunE:  runAbort,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploads the server believes are in progress",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	for _, c := range []*cobra.Command{uploadCmd, resumeCmd, partsCmd, abortCmd, listCmd} {
		rootCmd.AddCommand(c)
		c.Flags().String("server_url", defaultServerURL, "Base URL of the zapload server")
		c.Flags().Int("retry_max", client.DefaultRetryMax, "Retries for throttled or unavailable responses")
		c.Flags().SortFlags = false
	}

	for _, c := range []*cobra.Command{uploadCmd, resumeCmd} {
		addTransferFlags(c.Flags())
	}
	uploadCmd.Flags().String("category", "", "Upload category (file, evidence, module-record)")
	uploadCmd.Flags().String("content_type", "", "Content type (default: inferred from the file name)")
	uploadCmd.Flags().Bool("single", false, "Send the whole file in one request and let the server split it")

	for _, c := range []*cobra.Command{resumeCmd, partsCmd, abortCmd} {
		addSessionFlags(c)
	}
}

func addTransferFlags(f *pflag.FlagSet) {
	f.String("chunk_size", "5MiB", "Part size")
	f.Int("concurrency", client.DefaultConcurrency(), "Parts in flight")
	f.Bool("keep_on_failure", false, "Leave a failed session open for resume")
}

func addSessionFlags(c *cobra.Command) {
	c.Flags().String("upload_id", "", "Upload session id")
	c.Flags().String("key", "", "Object key of the session")
	_ = c.MarkFlagRequired("upload_id")
	_ = c.MarkFlagRequired("key")
}

func newClient(cmd *cobra.Command) *client.Client {
	utils.LoadConfiguration("zapload", false)
	f := NewFlagLoader(cmd)
	return client.New(f.String("server_url"), client.WithRetryMax(f.Int("retry_max")))
}

func sessionFromFlags(cmd *cobra.Command) apitypes.Session {
	f := NewFlagLoader(cmd)
	return apitypes.Session{UploadID: f.String("upload_id"), Key: f.String("key")}
}

func newUploader(cmd *cobra.Command, c *client.Client, total int64) (*client.Uploader, error) {
	f := NewFlagLoader(cmd)
	chunkSize, err := f.Size("chunk_size")
	if err != nil {
		return nil, err
	}

	out := cmd.ErrOrStderr()
	var sent atomic.Int64
	cfg := client.UploaderConfig{
		Concurrency:   f.Int("concurrency"),
		ChunkSize:     chunkSize,
		KeepOnFailure: f.Bool("keep_on_failure"),
		OnPart: func(part apitypes.PartRef, size int64) {
			done := sent.Add(size)
			fmt.Fprintf(out, "part %d committed (%s / %s)\n", part.PartNumber,
				humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
		},
	}
	if cmd.Flags().Lookup("category") != nil {
		cfg.Category = f.String("category")
		cfg.ContentType = f.String("content_type")
	}
	return client.NewUploader(c, cfg), nil
}

// signalContext is canceled on SIGINT or SIGTERM so a running upload can
// abort its session before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openFile(path string) (*os.File, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}
	return file, info.Size(), nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	file, size, err := openFile(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	c := newClient(cmd)
	defer c.Close()

	ctx, stop := signalContext()
	defer stop()

	name := filepath.Base(args[0])
	if single, _ := cmd.Flags().GetBool("single"); single {
		res, err := c.UploadFile(ctx, name, NewFlagLoader(cmd).String("category"), file)
		if err != nil {
			return err
		}
		printCompleted(cmd.OutOrStdout(), apitypes.Completed{
			Key:      res.Key,
			Location: res.Location,
			Size:     res.Size,
			Parts:    res.Parts,
		})
		return nil
	}

	u, err := newUploader(cmd, c, size)
	if err != nil {
		return err
	}
	res, err := u.Upload(ctx, name, file, size)
	if err != nil {
		return describeFailure(cmd.ErrOrStderr(), args[0], err)
	}
	printCompleted(cmd.OutOrStdout(), *res)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	file, size, err := openFile(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	c := newClient(cmd)
	defer c.Close()

	ctx, stop := signalContext()
	defer stop()

	u, err := newUploader(cmd, c, size)
	if err != nil {
		return err
	}
	res, err := u.Resume(ctx, sessionFromFlags(cmd), file, size)
	if err != nil {
		return describeFailure(cmd.ErrOrStderr(), args[0], err)
	}
	printCompleted(cmd.OutOrStdout(), *res)
	return nil
}

func runParts(cmd *cobra.Command, args []string) error {
	c := newClient(cmd)
	defer c.Close()

	progress, err := c.Progress(cmd.Context(), sessionFromFlags(cmd), 0)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PART\tSIZE\tETAG\tLAST MODIFIED")
	var total uint64
	for _, p := range progress.Parts {
		total += uint64(p.Size)
		modified := "-"
		if !p.LastModified.IsZero() {
			modified = humanize.Time(p.LastModified)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.PartNumber, humanize.IBytes(uint64(p.Size)), p.ETag, modified)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d parts, %s committed\n", len(progress.Parts), humanize.IBytes(total))
	return nil
}

func runAbort(cmd *cobra.Command, args []string) error {
	c := newClient(cmd)
	defer c.Close()

	sess := sessionFromFlags(cmd)
	if err := c.Abort(cmd.Context(), sess); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "aborted %s (%s)\n", sess.UploadID, sess.Key)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	c := newClient(cmd)
	defer c.Close()

	uploads, err := c.ListInProgress(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UPLOAD ID\tKEY\tFILE\tSIZE\tSTARTED")
	for _, u := range uploads {
		size := "-"
		if u.Size > 0 {
			size = humanize.IBytes(uint64(u.Size))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.UploadID, u.Key, u.FileName, size, humanize.Time(u.StartedAt))
	}
	return w.Flush()
}

func printCompleted(w io.Writer, res apitypes.Completed) {
	fmt.Fprintf(w, "uploaded %s (%s in %d parts)\n", res.Key, humanize.IBytes(uint64(res.Size)), res.Parts)
	if res.Location != "" {
		fmt.Fprintf(w, "location: %s\n", res.Location)
	}
}

// describeFailure tells the user how to continue a session that was left open.
func describeFailure(w io.Writer, path string, err error) error {
	var serr *client.SessionError
	if errors.As(err, &serr) && !serr.Aborted {
		fmt.Fprintf(w, "session left open; continue with:\n  zapload resume %s --upload_id %s --key %s\n",
			path, serr.Session.UploadID, serr.Session.Key)
	}
	return err
}
