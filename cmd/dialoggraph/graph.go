package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dshills/dialoggraph/action"
	"github.com/dshills/dialoggraph/dialogue"
	"github.com/dshills/dialoggraph/extract"
	"github.com/dshills/dialoggraph/graph"
	"github.com/dshills/dialoggraph/graph/model"
	"github.com/dshills/dialoggraph/graph/store"
	"github.com/dshills/dialoggraph/internal/config"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the workflow graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the workflow. With --thread the node
the conversation is waiting at is highlighted, read from the configured store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := workflowGraph()
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if threadID, _ := cmd.Flags().GetString("thread"); threadID != "" {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cursor, err := threadCursor(cmd.Context(), cfg.Store, threadID)
			if err != nil {
				return err
			}
			overlay = &graph.Overlay{Current: cursor}
		}

		fmt.Fprint(cmd.OutOrStdout(), g.Mermaid(dialogue.Shape, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("thread", "", "Highlight where this thread is waiting")
}

// workflowGraph builds the workflow with inert collaborators; only its
// structure is used.
func workflowGraph() (graph.Graph[dialogue.State, dialogue.Update], error) {
	inert := extract.Func(func(context.Context, string, []model.Message) (extract.Fields, error) {
		return extract.Fields{}, nil
	})
	svc, err := dialogue.NewService(store.NewMemStore[dialogue.State](), inert, action.NewMux())
	if err != nil {
		return graph.Graph[dialogue.State, dialogue.Update]{}, err
	}
	return svc.Graph(), nil
}

func threadCursor(ctx context.Context, cfg config.StoreConfig, threadID string) (string, error) {
	if cfg.Driver == config.DriverMemory {
		return "", errors.New("--thread needs a persistent store; set store.driver")
	}
	a := &app{}
	defer func() { _ = a.Close(context.Background()) }()

	var client redis.UniversalClient
	if cfg.Driver == config.DriverRedis {
		client = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		a.onClose(func(context.Context) error { return client.Close() })
	}
	st, err := newStore(cfg, client, a)
	if err != nil {
		return "", err
	}
	cp, err := st.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return cp.Cursor, nil
}
