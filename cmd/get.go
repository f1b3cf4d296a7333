package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/downpour-dl/downpour/internal/downloader"
	"github.com/downpour-dl/downpour/internal/engine"
	"github.com/downpour-dl/downpour/internal/engine/types"
	"github.com/downpour-dl/downpour/internal/utils"
)

type getFlags struct {
	name       string
	extension  string
	dir        string
	version    string
	token      string
	policy     string
	total      int64
	output     string
	foreground bool
}

var getOpts getFlags

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "get downloads a file from a URL",
	Long: `get downloads a file from a URL and saves it under the storage root.
Interrupting with Ctrl-C keeps the partial file; running get again with
the append policy resumes from where it stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd, args[0])
	},
}

func init() {
	getCmd.Flags().StringVarP(&getOpts.name, "name", "n", "", "base file name (default: derived from the URL)")
	getCmd.Flags().StringVarP(&getOpts.extension, "extension", "e", "", "file extension (default: derived from the URL)")
	getCmd.Flags().StringVarP(&getOpts.dir, "dir", "d", "", "directory segment under the storage root (default: the URL host)")
	getCmd.Flags().StringVar(&getOpts.version, "file-version", "", "optional version segment under the directory")
	getCmd.Flags().StringVarP(&getOpts.token, "token", "t", "", "bearer token sent with the request")
	getCmd.Flags().StringVarP(&getOpts.policy, "policy", "p", "", "existing-file policy: overwrite, append, or createnew")
	getCmd.Flags().Int64Var(&getOpts.total, "total", 0, "expected size in bytes, used for the ETA when the server sends none")
	getCmd.Flags().StringVarP(&getOpts.output, "output", "o", "", "storage root override")
	getCmd.Flags().BoolVar(&getOpts.foreground, "foreground", false, "emit progress notifications")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, rawURL string) error {
	req, err := buildRequest(rawURL, getOpts)
	if err != nil {
		req, err = probeRequest(cmd.Context(), rawURL, getOpts, settings.ToRuntimeConfig(), logger)
		if err != nil {
			return err
		}
	}

	policyName := getOpts.policy
	if policyName == "" {
		policyName = settings.Transfers.DefaultPolicy
	}
	policy, err := types.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	root := getOpts.output
	if root == "" {
		root = settings.General.StorageRoot
	}

	mgr, cleanup, err := newManager(root)
	if err != nil {
		return err
	}
	defer cleanup()

	listener := &printListener{
		out:  cmd.OutOrStdout(),
		name: req.LogicalKey(),
		done: make(chan error, 1),
	}
	if _, err := mgr.Submit(downloader.Submission{
		Request:    req,
		Policy:     policy,
		Foreground: getOpts.foreground,
		Listener:   listener,
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	select {
	case err := <-listener.done:
		return err
	case <-ctx.Done():
		mgr.Cancel(req.LogicalKey())
		return <-listener.done
	}
}

// buildRequest fills in the fields derivable from the URL and validates
// the rest.
func buildRequest(rawURL string, f getFlags) (types.DownloadRequest, error) {
	name, ext := f.name, f.extension
	if name == "" || ext == "" {
		urlName, urlExt := utils.SplitURLFilename(rawURL)
		if name == "" {
			name = urlName
		}
		if ext == "" {
			ext = urlExt
		}
	}

	dir := f.dir
	if dir == "" {
		if parsed, err := url.Parse(rawURL); err == nil {
			dir = parsed.Hostname()
		}
	}

	req := types.DownloadRequest{
		URL:         rawURL,
		Name:        name,
		Extension:   ext,
		Directory:   dir,
		Version:     f.version,
		TotalBytes:  f.total,
		AccessToken: f.token,
	}
	if err := req.Validate(); err != nil {
		return types.DownloadRequest{}, err
	}
	return req, nil
}

// probeRequest asks the origin to name the file when the URL path cannot.
// Content-Disposition supplies the missing name and extension, and the
// probed size fills the expected total unless --total was given.
func probeRequest(ctx context.Context, rawURL string, f getFlags, rt *types.RuntimeConfig, log *zap.Logger) (types.DownloadRequest, error) {
	tr := engine.NewTransfer(engine.NewClient(rt, log), rt, log)
	probed, err := tr.Probe(ctx, rawURL, f.token)
	if err != nil {
		return types.DownloadRequest{}, err
	}

	if probed.Filename != "" {
		dotExt := path.Ext(probed.Filename)
		if f.name == "" {
			f.name = strings.TrimSuffix(probed.Filename, dotExt)
		}
		if f.extension == "" {
			f.extension = strings.TrimPrefix(dotExt, ".")
		}
	}
	if f.total == 0 && probed.Size > 0 {
		f.total = probed.Size
	}
	return buildRequest(rawURL, f)
}

// printListener renders lifecycle callbacks as terminal lines. Progress
// ticks rewrite one line; terminal states end it.
type printListener struct {
	out      io.Writer
	name     string
	started  bool
	progress bool
	done     chan error
}

func (l *printListener) OnEnqueued() {
	fmt.Fprintf(l.out, "queued %s\n", l.name)
}

func (l *printListener) OnRunning(received int64, rate float64, remaining time.Duration) {
	if !l.started {
		l.started = true
		if received > 0 {
			fmt.Fprintf(l.out, "resuming %s from %s\n", l.name, utils.FormatBytes(received))
		} else {
			fmt.Fprintf(l.out, "downloading %s\n", l.name)
		}
		return
	}

	l.progress = true
	if remaining > 0 {
		fmt.Fprintf(l.out, "\r%10s  %12s  eta %-10s", utils.FormatBytes(received), utils.FormatRate(rate), utils.FormatDuration(remaining))
	} else {
		fmt.Fprintf(l.out, "\r%10s  %12s", utils.FormatBytes(received), utils.FormatRate(rate))
	}
}

func (l *printListener) OnSucceeded(path string) {
	l.endProgressLine()
	fmt.Fprintf(l.out, "saved %s\n", path)
	l.done <- nil
}

func (l *printListener) OnFailed(message string) {
	l.endProgressLine()
	l.done <- errors.New(message)
}

func (l *printListener) OnCancelled() {
	l.endProgressLine()
	fmt.Fprintf(l.out, "cancelled %s, partial file kept\n", l.name)
	l.done <- errors.New("download cancelled")
}

func (l *printListener) OnBlocked() {
	l.endProgressLine()
	l.done <- errors.New("download blocked")
}

func (l *printListener) endProgressLine() {
	if l.progress {
		fmt.Fprintln(l.out)
		l.progress = false
	}
}
