package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bft-labs/mmsgate/internal/cliconfig"
	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/plugins/spool"
)

func newSubmitCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	var (
		bodyPath    string
		payloadPath string
	)

	cmd := &cobra.Command{
		Use:   "submit KIND [MESSAGE-ID]",
		Short: "Queue a transaction for a running gateway",
		Long: `Queue a transaction by dropping a request into the spool directory.

KIND is one of send, ack-read, notify or retrieve.
  send      stores --body as an outbound message and sends it
  ack-read  stores --body as a read report and posts it
  notify    handles the push payload in --payload
  retrieve  downloads a stored notification by MESSAGE-ID`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}

			f := spool.File{ID: uuid.NewString(), Kind: kind}
			switch kind {
			case domain.KindSend, domain.KindAcknowledgeRead:
				body, err := readInput(bodyPath)
				if err != nil {
					return fmt.Errorf("read body: %w", err)
				}
				id, err := storeOutbound(cmd, *cfg, kind, body)
				if err != nil {
					return err
				}
				f.Target = id
			case domain.KindNotify:
				payload, err := readInput(payloadPath)
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
				if _, err := domain.ParseNotification(payload); err != nil {
					return err
				}
				f.PushPayload = payload
			case domain.KindRetrieve:
				if len(args) < 2 {
					return fmt.Errorf("%w: retrieve needs a message id", domain.ErrMalformedRequest)
				}
				f.Target = args[1]
			}

			path, err := spool.Write(cfg.SpoolDir, time.Now().UTC().Format("20060102T150405.000000000")+"-"+f.ID, f)
			if err != nil {
				return fmt.Errorf("write spool file: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&bodyPath, "body", "-", "encoded message body file, - for stdin")
	cmd.Flags().StringVar(&payloadPath, "payload", "-", "push payload file, - for stdin")
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func storeOutbound(cmd *cobra.Command, cfg cliconfig.Config, kind domain.Kind, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty body", domain.ErrMalformedRequest)
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return "", fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	return store.Save(cmd.Context(), domain.Message{
		MessageType: domain.MessageTypeForKind(kind),
		Body:        body,
		Status:      domain.StatusPending,
	})
}
