package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/fmueller/voxapi/internal/config"
	"github.com/fmueller/voxapi/internal/download"
	"github.com/fmueller/voxapi/internal/record"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	return runApp(t, newTestApp(), args)
}

func runApp(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

// newTestApp never touches the network, the microphone or a listening socket.
func newTestApp() *appState {
	return &appState{
		envFile: ".env",
		serveFn: func(context.Context, config.Config) error {
			return nil
		},
		fetchFn: func(context.Context, download.Options) error {
			return nil
		},
		recordFn: func(context.Context, record.Config) error {
			return nil
		},
		listDevicesFn: func() ([]record.DeviceInfo, error) {
			return nil, nil
		},
	}
}
