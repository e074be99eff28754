// Command memexctl is the command-line front-end for the memex engine:
// it opens the engine rooted at --root and maps each subcommand onto the
// library facade, printing JSON with --json or human-readable text
// otherwise.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	memex "github.com/liliang-cn/memex"
	"github.com/liliang-cn/memex/pkg/fusion"
	"github.com/liliang-cn/memex/pkg/store"
)

var (
	rootDir    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "memexctl",
	Short: "CLI for the memex personal memory engine",
	Long:  `Manage memories, search indexes, the knowledge graph, learned patterns and profiles in a memex database.`,
}

func openEngine() (*memex.Memex, error) {
	m, err := memex.Open(context.Background(), memex.Options{RootDir: rootDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return m, nil
}

func printResult(v any, human func()) {
	if jsonOutput {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
			return
		}
		fmt.Println(string(raw))
		return
	}
	human()
}

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a new memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetStringSlice("tags")
		project, _ := cmd.Flags().GetString("project")
		importance, _ := cmd.Flags().GetInt("importance")

		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		id, err := m.Add(context.Background(), store.AddInput{
			Content:    args[0],
			Tags:       tags,
			Project:    project,
			Importance: importance,
		})
		if err != nil {
			return err
		}
		printResult(map[string]any{"id": id}, func() {
			fmt.Printf("Memory %d stored\n", id)
		})
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a memory by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		mem, err := m.Get(context.Background(), id)
		if err != nil {
			return err
		}
		printResult(mem, func() {
			fmt.Printf("[%d] tier=%d importance=%d tags=%s\n%s\n",
				mem.ID, mem.Tier, mem.Importance, strings.Join(mem.Tags, ","), mem.Content)
		})
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		method, _ := cmd.Flags().GetString("method")
		full, _ := cmd.Flags().GetBool("full")
		expand, _ := cmd.Flags().GetBool("expand")

		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		results, err := m.Search(context.Background(), args[0], memex.SearchOptions{
			Limit:  limit,
			Method: fusion.Strategy(method),
			Full:   full,
			Expand: expand,
		})
		if err != nil {
			return err
		}
		printResult(results, func() {
			for i, r := range results {
				fmt.Printf("%2d. [%d] %.3f (%s) %s\n", i+1, r.ID, r.Score, r.MatchOrigin, firstLine(r.ContentPreview))
			}
			if len(results) == 0 {
				fmt.Println("no results")
			}
		})
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories in the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		project, _ := cmd.Flags().GetString("project")
		tags, _ := cmd.Flags().GetStringSlice("tags")

		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		memories, err := m.List(context.Background(), store.ListFilters{
			Limit:      limit,
			Project:    project,
			Tags:       tags,
			Descending: true,
		})
		if err != nil {
			return err
		}
		printResult(memories, func() {
			for _, mem := range memories {
				fmt.Printf("[%d] tier=%d %s\n", mem.ID, mem.Tier, firstLine(mem.Content))
			}
		})
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Delete(context.Background(), id); err != nil {
			return err
		}
		printResult(map[string]any{"deleted": id}, func() {
			fmt.Printf("Memory %d deleted\n", id)
		})
		return nil
	},
}

var graphBuildCmd = &cobra.Command{
	Use:   "graph-build",
	Short: "Rebuild the knowledge graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		minSim, _ := cmd.Flags().GetFloat64("min-sim")
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.GraphBuild(context.Background(), minSim); err != nil {
			return err
		}
		stats, err := m.GraphStats(context.Background())
		if err != nil {
			return err
		}
		printResult(stats, func() {
			fmt.Printf("Graph built: %d nodes, %d edges, %d clusters\n",
				stats.NodeCount, stats.EdgeCount, stats.ClusterCount)
		})
		return nil
	},
}

var graphStatsCmd = &cobra.Command{
	Use:   "graph-stats",
	Short: "Show knowledge-graph statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		stats, err := m.GraphStats(context.Background())
		if err != nil {
			return err
		}
		printResult(stats, func() {
			fmt.Printf("nodes=%d edges=%d clusters=%d avg_weight=%.3f\n",
				stats.NodeCount, stats.EdgeCount, stats.ClusterCount, stats.AvgEdgeWeight)
		})
		return nil
	},
}

var graphRelatedCmd = &cobra.Command{
	Use:   "graph-related <id>",
	Short: "List memories related to one memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		hops, _ := cmd.Flags().GetInt("hops")

		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		ids, err := m.GraphRelated(context.Background(), id, hops)
		if err != nil {
			return err
		}
		printResult(ids, func() {
			fmt.Printf("related: %v\n", ids)
		})
		return nil
	},
}

var graphClusterCmd = &cobra.Command{
	Use:   "graph-cluster <cluster-id>",
	Short: "Show a cluster's summary and members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid cluster id %q", args[0])
		}
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		summary, err := m.ClusterSummary(context.Background(), id)
		if err != nil {
			return err
		}
		printResult(summary, func() {
			fmt.Printf("[%d] %s (%d members, avg importance %.1f)\nentities: %s\n",
				summary.ID, summary.Name, summary.MemberCount, summary.AvgImportance,
				strings.Join(summary.TopEntities, ", "))
		})
		return nil
	},
}

var patternsUpdateCmd = &cobra.Command{
	Use:   "patterns-update",
	Short: "Rerun the pattern analyzers",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		n, err := m.PatternsUpdate(context.Background())
		if err != nil {
			return err
		}
		printResult(map[string]any{"candidates": n}, func() {
			fmt.Printf("%d pattern candidates scored\n", n)
		})
		return nil
	},
}

var patternsListCmd = &cobra.Command{
	Use:   "patterns-list",
	Short: "List learned patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		patterns, err := m.Patterns(context.Background(), minConf)
		if err != nil {
			return err
		}
		printResult(patterns, func() {
			for _, p := range patterns {
				fmt.Printf("[%d] %s/%s: %s (%.2f, %d evidence)\n",
					p.ID, p.Type, p.Category, p.Value, p.Confidence, p.EvidenceCount)
			}
		})
		return nil
	},
}

var patternsContextCmd = &cobra.Command{
	Use:   "patterns-context",
	Short: "Print the learned identity context block",
	RunE: func(cmd *cobra.Command, args []string) error {
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		text, err := m.IdentityContext(context.Background(), minConf)
		if err != nil {
			return err
		}
		printResult(map[string]any{"context": text}, func() {
			fmt.Print(text)
		})
		return nil
	},
}

var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Run one compression pass over the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		res, err := m.Compress(context.Background())
		if err != nil {
			return err
		}
		printResult(res, func() {
			fmt.Printf("tier2=%d tier3=%d cold=%d restored=%d kept=%d\n",
				res.ToTier2, res.ToTier3, res.ToCold, res.Restored, res.Kept)
		})
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a compressed memory to full fidelity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		m, err := openEngine()
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Restore(context.Background(), id); err != nil {
			return err
		}
		printResult(map[string]any{"restored": id}, func() {
			fmt.Printf("Memory %d restored\n", id)
		})
		return nil
	},
}

func profileCommands() []*cobra.Command {
	list := &cobra.Command{
		Use:   "profile-list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			profiles := m.Profiles()
			active := m.ActiveProfile()
			printResult(profiles, func() {
				for _, p := range profiles {
					marker := " "
					if p.Name == active {
						marker = "*"
					}
					fmt.Printf("%s %s\t%s\n", marker, p.Name, p.Description)
				}
			})
			return nil
		},
	}
	current := &cobra.Command{
		Use:   "profile-current",
		Short: "Print the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			printResult(map[string]any{"active_profile": m.ActiveProfile()}, func() {
				fmt.Println(m.ActiveProfile())
			})
			return nil
		},
	}
	create := &cobra.Command{
		Use:   "profile-create <name>",
		Short: "Create a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			p, err := m.ProfileCreate(context.Background(), args[0], description)
			if err != nil {
				return err
			}
			printResult(p, func() {
				fmt.Printf("Profile %q created\n", p.Name)
			})
			return nil
		},
	}
	create.Flags().String("description", "", "profile description")
	sw := &cobra.Command{
		Use:   "profile-switch <name>",
		Short: "Switch the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.ProfileSwitch(context.Background(), args[0]); err != nil {
				return err
			}
			printResult(map[string]any{"active_profile": args[0]}, func() {
				fmt.Printf("Switched to %q\n", args[0])
			})
			return nil
		},
	}
	del := &cobra.Command{
		Use:   "profile-delete <name>",
		Short: "Delete a profile and all its data (snapshots first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.ProfileDelete(context.Background(), args[0]); err != nil {
				return err
			}
			printResult(map[string]any{"deleted": args[0]}, func() {
				fmt.Printf("Profile %q deleted\n", args[0])
			})
			return nil
		},
	}
	rename := &cobra.Command{
		Use:   "profile-rename <old> <new>",
		Short: "Rename a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.ProfileRename(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			printResult(map[string]any{"renamed": args[1]}, func() {
				fmt.Printf("Profile %q renamed to %q\n", args[0], args[1])
			})
			return nil
		},
	}
	return []*cobra.Command{list, current, create, sw, del, rename}
}

func resetCommands() []*cobra.Command {
	status := &cobra.Command{
		Use:   "reset-status",
		Short: "Show engine state without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			s, err := m.ResetStatus(context.Background())
			if err != nil {
				return err
			}
			printResult(s, func() {
				fmt.Printf("profile=%s memories=%d nodes=%d edges=%d clusters=%d patterns=%d\n",
					s.ActiveProfile, s.MemoryCount, s.GraphNodes, s.GraphEdges, s.Clusters, s.Patterns)
			})
			return nil
		},
	}
	soft := &cobra.Command{
		Use:   "reset-soft",
		Short: "Rebuild derived indexes, keep all data",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.ResetSoft(context.Background()); err != nil {
				return err
			}
			printResult(map[string]any{"reset": "soft"}, func() {
				fmt.Println("Indexes rebuilt")
			})
			return nil
		},
	}
	hard := &cobra.Command{
		Use:   "reset-hard",
		Short: "Wipe the active profile's data (snapshots first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.ResetHard(context.Background()); err != nil {
				return err
			}
			printResult(map[string]any{"reset": "hard"}, func() {
				fmt.Println("Profile data wiped (snapshot retained in backups/)")
			})
			return nil
		},
	}
	layer := &cobra.Command{
		Use:   "reset-layer <graph|index|patterns>",
		Short: "Rebuild one derived layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openEngine()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.ResetLayer(context.Background(), args[0]); err != nil {
				return err
			}
			printResult(map[string]any{"reset": args[0]}, func() {
				fmt.Printf("Layer %q rebuilt\n", args[0])
			})
			return nil
		},
	}
	return []*cobra.Command{status, soft, hard, layer}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return s
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "engine root directory (default ~/.memex)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")

	addCmd.Flags().StringSlice("tags", nil, "comma-separated tags")
	addCmd.Flags().String("project", "", "project name")
	addCmd.Flags().Int("importance", 0, "importance 1-10 (default 5)")

	searchCmd.Flags().Int("limit", 10, "maximum results")
	searchCmd.Flags().String("method", "weighted", "bm25|semantic|graph|weighted|rrf")
	searchCmd.Flags().Bool("full", false, "return full content instead of previews")
	searchCmd.Flags().Bool("expand", false, "enable co-occurrence query expansion")

	listCmd.Flags().Int("limit", 20, "maximum results")
	listCmd.Flags().String("project", "", "filter by project")
	listCmd.Flags().StringSlice("tags", nil, "filter by tags")

	graphBuildCmd.Flags().Float64("min-sim", 0, "edge similarity threshold (default from config)")
	graphRelatedCmd.Flags().Int("hops", 1, "expansion depth")

	patternsListCmd.Flags().Float64("min-confidence", 0.5, "confidence floor")
	patternsContextCmd.Flags().Float64("min-confidence", 0.6, "confidence floor")

	rootCmd.AddCommand(addCmd, getCmd, searchCmd, listCmd, deleteCmd,
		graphBuildCmd, graphStatsCmd, graphRelatedCmd, graphClusterCmd,
		patternsUpdateCmd, patternsListCmd, patternsContextCmd,
		compressCmd, restoreCmd)
	rootCmd.AddCommand(profileCommands()...)
	rootCmd.AddCommand(resetCommands()...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
