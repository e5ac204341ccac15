package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"futurehuman/internal/wizard"
)

const draftKey = "agent-wizard"

func wizardCmd() *cobra.Command {
	wiz := &cobra.Command{
		Use:   "wizard",
		Short: "Author an agent step by step",
		Long: `The wizard walks through identity, appearance, voiceSoul, brain,
background and connections. Edits autosave to a draft in the workspace,
so each command resumes where the previous one left off. Submit pushes
the document to the server and reconciles connections.`,
	}
	wiz.AddCommand(wizardNewCmd())
	wiz.AddCommand(wizardEditCmd())
	wiz.AddCommand(wizardShowCmd())
	wiz.AddCommand(wizardSetCmd())
	wiz.AddCommand(wizardConnectCmd())
	wiz.AddCommand(wizardDisconnectCmd())
	wiz.AddCommand(wizardNextCmd())
	wiz.AddCommand(wizardBackCmd())
	wiz.AddCommand(wizardGotoCmd())
	wiz.AddCommand(wizardSubmitCmd())
	wiz.AddCommand(wizardResetCmd())
	return wiz
}

func draftStore() *wizard.Store {
	dir := filepath.Join(viper.GetString("workspace"), ".futurehuman", "drafts")
	return wizard.NewStore(wizard.NewFileStorage(dir), draftKey)
}

func wizardController(store *wizard.Store) *wizard.Controller {
	services := wizard.SDKServices{Client: apiClient()}
	return wizard.NewController(store, services, services, log.New(os.Stderr, "", log.LstdFlags))
}

func wizardNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a fresh draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Reset()
			store.Flush()
			return printDocument(store.Document())
		},
	}
	return cmd
}

func wizardEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <agent-id>",
		Short: "Load a server agent into the draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Hydrate("")
			ctrl := wizardController(store)
			if err := ctrl.LoadForEdit(cmd.Context(), args[0]); err != nil {
				return err
			}
			store.Flush()
			return printDocument(store.Document())
		},
	}
	return cmd
}

func wizardShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Hydrate("")
			return printDocument(store.Document())
		},
	}
	return cmd
}

func wizardSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <section> <field=value>...",
		Short: "Patch fields in a draft section",
		Long: `Sections: identity, appearance, voice, style, brain, background.
Values parse as numbers when possible; "null" clears nullable fields.
Example: fh wizard set style formality=8 humor=3`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			store := draftStore()
			store.Hydrate("")
			if err := store.PatchSection(args[0], fields); err != nil {
				return err
			}
			store.Flush()
			return printDocument(store.Document())
		},
	}
	return cmd
}

func wizardConnectCmd() *cobra.Command {
	var ext, status, token, configJSON string
	cmd := &cobra.Command{
		Use:   "connect <provider-id>",
		Short: "Add a connection to the draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Hydrate("")
			c := wizard.NewTempConnection(args[0], time.Now())
			if ext != "" {
				c.ExtID = ext
			}
			if status != "" {
				c.Status = status
			}
			if token != "" {
				c.Token = &token
			}
			if configJSON != "" {
				var cfg map[string]any
				if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
					return fmt.Errorf("invalid --config-json: %w", err)
				}
				c.Config = cfg
			}
			store.AddConnection(c)
			store.Flush()
			return printDocument(store.Document())
		},
	}
	cmd.Flags().StringVar(&ext, "ext", "", "external id (defaults to provider id)")
	cmd.Flags().StringVar(&status, "status", "", "status (connected, needs_setup, error)")
	cmd.Flags().StringVar(&token, "token", "", "credential token")
	cmd.Flags().StringVar(&configJSON, "config-json", "", "config JSON object")
	return cmd
}

func wizardDisconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect <id-or-temp-id>",
		Short: "Remove a connection from the draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Hydrate("")
			var id int64
			tempID := ""
			if n, err := strconv.ParseInt(args[0], 10, 64); err == nil {
				id = n
			} else {
				tempID = args[0]
			}
			if !store.RemoveConnection(id, tempID) {
				return fmt.Errorf("no connection %s in the draft", args[0])
			}
			store.Flush()
			return printDocument(store.Document())
		},
	}
	return cmd
}

func wizardNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Go to the next step",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Hydrate("")
			store.NextStep()
			store.Flush()
			fmt.Println("step:", store.CurrentStep())
			return nil
		},
	}
	return cmd
}

func wizardBackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "back",
		Short: "Go to the previous step",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Hydrate("")
			store.PreviousStep()
			store.Flush()
			fmt.Println("step:", store.CurrentStep())
			return nil
		},
	}
	return cmd
}

func wizardGotoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goto <step>",
		Short: "Jump to a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step := wizard.Step(args[0])
			store := draftStore()
			store.Hydrate(step)
			if err := store.GoToStep(step); err != nil {
				return err
			}
			store.Flush()
			fmt.Println("step:", store.CurrentStep())
			return nil
		},
	}
	return cmd
}

func wizardSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Push the draft to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Hydrate("")
			ctrl := wizardController(store)
			if err := ctrl.RefreshSnapshot(cmd.Context()); err != nil {
				return err
			}
			doc, err := ctrl.Submit(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("submitted agent", doc.EntityID)
			return printDocument(doc)
		},
	}
	return cmd
}

func wizardResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard the draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := draftStore()
			store.Reset()
			fmt.Println("draft cleared")
			return nil
		},
	}
	return cmd
}

func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected field=value, got %q", pair)
		}
		switch {
		case v == "null":
			fields[k] = nil
		default:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				fields[k] = n
			} else {
				fields[k] = v
			}
		}
	}
	return fields, nil
}

func printDocument(doc wizard.Document) error {
	if viper.GetBool("json") {
		return printJSON(doc)
	}
	fmt.Printf("agent: %s\n", orDash(doc.EntityID))
	fmt.Printf("step:  %s\n", doc.CurrentStep)
	fmt.Printf("name:  %s  brain: %s\n", orDash(doc.Identity.Name), orDash(doc.Brain.ID))
	if len(doc.Connections) == 0 {
		fmt.Println("connections: none")
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Provider", "Ext", "Status"})
	for _, c := range doc.Connections {
		id := c.TempID
		if c.ID != 0 {
			id = strconv.FormatInt(c.ID, 10)
		}
		tw.AppendRow(table.Row{id, c.ProviderID, c.ExtID, c.Status})
	}
	tw.Render()
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
