package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skycoin/datalink/cmd/datalink-cli/internal"
	"github.com/skycoin/datalink/internal/netutil"
	"github.com/skycoin/datalink/internal/pathutil"
	"github.com/skycoin/datalink/pkg/arq"
	"github.com/skycoin/datalink/pkg/link"
	"github.com/skycoin/datalink/pkg/node"
)

func init() {
	rootCmd.AddCommand(peerCmd)
}

var (
	peerConfig  string
	expectBytes int
	idleTimeout time.Duration
	dialTimeout time.Duration
	peerSeed    int64
)

func init() {
	peerCmd.Flags().StringVarP(&peerConfig, "config", "c", "", "node config shared with the peer (default: searched like datalink-node)")
	peerCmd.Flags().IntVar(&expectBytes, "expect", 0, "stop once this many bytes were delivered; 0 waits for the sender to go idle")
	peerCmd.Flags().DurationVar(&idleTimeout, "idle", 3*time.Second, "stop after the sender finished and nothing arrived for this long")
	peerCmd.Flags().DurationVar(&dialTimeout, "dial-timeout", 10*time.Second, "give up dialing after this long")
	peerCmd.Flags().Int64Var(&peerSeed, "seed", 0, "loss simulator seed; 0 seeds from the clock")
}

var peerCmd = &cobra.Command{
	Use:   "peer <node-addr>",
	Short: "Connects to a node as the receiving peer, requests a transfer and prints what arrived",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		conf := peerNodeConfig()
		ac := conf.ARQ.Config()
		ac.Seed = peerSeed

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			<-ch
			cancel()
		}()

		var ep *link.Endpoint
		r := netutil.NewRetrier(200*time.Millisecond, dialTimeout, 2)
		internal.Catch(r.Do(ctx, func() (err error) {
			ep, err = link.Dial(ctx, args[0], conf.LinkConfig(), nil)
			return err
		}), "failed to dial node:")
		defer func() { _ = ep.Close() }() //nolint:errcheck

		s, err := arq.NewSession(ac, arq.Message{}, ep, nil)
		internal.Catch(err)

		serveErr := make(chan error, 1)
		go func() { serveErr <- ep.Serve(ctx, s) }()
		internal.Catch(s.Begin(), "failed to request transfer:")
		log.Infof("Requested transfer from %s", ep.RemoteAddr())

		err = waitDelivered(ctx, s, serveErr)
		if err != nil && !errors.Is(err, link.ErrPeerDisconnected) && err != context.Canceled {
			internal.Catch(err)
		}

		st := s.Status()
		fmt.Printf("delivered: %d bytes\n", st.Delivered)
		fmt.Printf("digest:    %s\n", s.DeliveredDigest())
		fmt.Printf("acks:      %d sent, %d dropped\n", st.Stats.AcksSent, st.Stats.AcksDropped)
		fmt.Printf("discarded: %d frames\n", st.Stats.Discarded)
		fmt.Printf("message:   %q\n", s.Delivered())
	},
}

func peerNodeConfig() *node.Config {
	path := peerConfig
	if path == "" {
		var err error
		if path, err = pathutil.FindConfigPath(nil, -1, "DL_CONFIG", pathutil.NodeDefaults()); err != nil {
			log.WithError(err).Info("No config found; using defaults")
			return node.DefaultConfig()
		}
	}
	conf, err := node.ReadConfigFile(path)
	internal.Catch(err, "failed to read config:")
	return conf
}

// waitDelivered polls s until the expected amount arrived, or the sender
// signalled the end of the message and the link stayed quiet for idleTimeout.
func waitDelivered(ctx context.Context, s *arq.Session, serveErr <-chan error) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	last, quiet := -1, time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-serveErr:
			return err
		case <-ticker.C:
			st := s.Status()
			if expectBytes > 0 && st.Delivered >= expectBytes {
				return nil
			}
			if st.Delivered != last {
				last, quiet = st.Delivered, 0
				continue
			}
			if quiet += 50 * time.Millisecond; expectBytes == 0 && st.PeerDone && quiet >= idleTimeout {
				return nil
			}
		}
	}
}
