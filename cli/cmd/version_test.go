package cmd

import (
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sluice/types"
)

func TestVersionCommand_TUIRejected(t *testing.T) {
	app := cli.NewApp()
	app.Commands = []*cli.Command{VersionCommand("abc123")}
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run([]string{"sluice", "version", "--tui"})
	if err == nil {
		t.Fatal("expected error for --tui on version command")
	}
}

func TestVersionResponse_UsesCanonicalVersion(t *testing.T) {
	resp := VersionResponse{Version: types.Version, Commit: "abc123"}
	if resp.Version != types.Version {
		t.Errorf("version = %q, want %q", resp.Version, types.Version)
	}
	if resp.Version == "" {
		t.Error("canonical version must not be empty")
	}
}
