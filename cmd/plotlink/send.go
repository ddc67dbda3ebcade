package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/plotlink/pkg/adapters/ws"
	"github.com/aretw0/plotlink/pkg/runner"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <server-url> <plot-id> [event...]",
	Short: "Connect as a drawing client and send events",
	Long: `Binds this process as the client of a plot over websocket and sends each
event argument, e.g. "mouseDown 10,20". Without event arguments, lines are read
from stdin until EOF or Ctrl+C.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := ws.ClientURL(args[0], args[1])
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		sm := runner.NewSignalManager(cmd.Context())
		defer sm.Stop()

		dialCtx, cancel := context.WithTimeout(sm.Context(), timeout)
		defer cancel()
		client, err := ws.Dial(dialCtx, url, ws.Hello{PID: os.Getpid(), Name: name})
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Fprintf(cmd.ErrOrStderr(), "Bound to plot %s\n", client.PlotID())

		if len(args) > 2 {
			for _, text := range args[2:] {
				if err := client.Send(text); err != nil {
					return err
				}
			}
			return nil
		}
		return sendLines(sm, client, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().String("name", "plotlink-send", "Client name announced in the hello")
	sendCmd.Flags().Duration("timeout", 5*time.Second, "Connect and handshake timeout")
}

// sendLines forwards each line of in until EOF, a signal, or the server dropping the client.
func sendLines(sm *runner.SignalManager, client *ws.Client, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		readErr <- scanner.Err()
	}()

	ctx := sm.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return fmt.Errorf("server closed the connection")
		case err := <-readErr:
			// Ctrl+C can surface as EOF just before the signal lands.
			sm.CheckRace()
			return err
		case text := <-lines:
			if err := client.Send(text); err != nil {
				return err
			}
		}
	}
}
