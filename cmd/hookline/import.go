package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/hookline/internal/api"
	"github.com/jackzampolin/hookline/internal/prompts"
)

var (
	importClient   string
	importCampaign string
	importName     string
	importDirPath  string
)

// importResult reports what happened to one imported file.
type importResult struct {
	File     string `json:"file" yaml:"file"`
	Document string `json:"document" yaml:"document"`
	Version  int    `json:"version,omitempty" yaml:"version,omitempty"`
	Status   string `json:"status" yaml:"status"` // saved or unchanged
}

var importCmd = &cobra.Command{
	Use:   "import [scope file]",
	Short: "Import document files into the local store",
	Long: `Import plain document files into the local store. Each changed file becomes
a new active version; files identical to the active version are skipped.

For client, campaign and blueprint documents, "key: value" lines before the
first "##" header are front matter (list values are comma-separated).

With --dir, a directory laid out as

  global.md
  clients/<client>.md
  campaigns/<client>/<campaign>.md
  blueprints/<name>.md

is imported in that order.

Examples:
  hookline import client acme.md --client acme
  hookline import campaign launch.md --client acme --campaign launch
  hookline import --dir ./prompts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if importDirPath == "" && len(args) != 2 {
			return errors.New("give a scope and a file, or --dir")
		}
		if importDirPath != "" && len(args) != 0 {
			return errors.New("--dir takes no arguments")
		}

		store, err := openStore(newLogger("warn"))
		if err != nil {
			return err
		}
		defer store.Close()

		var results []importResult
		if importDirPath != "" {
			results, err = importDir(cmd.Context(), store, importDirPath)
		} else {
			var scope prompts.Scope
			if scope, err = prompts.ParseScope(args[0]); err != nil {
				return err
			}
			id := prompts.Identity{Client: importClient, Campaign: importCampaign, Name: importName}
			var res importResult
			res, err = importFile(cmd.Context(), store, scope, id, args[1])
			results = []importResult{res}
		}
		if err != nil {
			return err
		}
		return api.Output(results)
	},
}

func init() {
	importCmd.Flags().StringVar(&importClient, "client", "", "Client name (client and campaign scopes)")
	importCmd.Flags().StringVar(&importCampaign, "campaign", "", "Campaign name (campaign scope)")
	importCmd.Flags().StringVar(&importName, "name", "", "Blueprint name (blueprint scope)")
	importCmd.Flags().StringVar(&importDirPath, "dir", "", "Import a whole directory")

	rootCmd.AddCommand(importCmd)
}

// importFile parses one document file and saves it unless it matches the
// active version.
func importFile(ctx context.Context, store *prompts.Store, scope prompts.Scope, id prompts.Identity, path string) (importResult, error) {
	res := importResult{File: path, Document: id.Key(scope)}

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fm, body, err := prompts.ParseDocument(scope, string(data))
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}

	doc, err := store.Load(ctx, scope, id)
	switch {
	case err == nil:
		same, err := sameContent(doc.Active, fm, body)
		if err != nil {
			return res, err
		}
		if same {
			res.Version = doc.Active.Number
			res.Status = "unchanged"
			return res, nil
		}
	case !errors.Is(err, prompts.ErrNotFound):
		return res, err
	}

	v, err := store.Save(ctx, scope, id, fm, body)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	res.Version = v.Number
	res.Status = "saved"
	return res, nil
}

func sameContent(active prompts.Version, fm prompts.FrontMatter, body string) (bool, error) {
	a, err := prompts.DocumentText(active.FrontMatter, active.Body)
	if err != nil {
		return false, err
	}
	b, err := prompts.DocumentText(fm, body)
	if err != nil {
		return false, err
	}
	return a == b, nil
}

// importDir imports a directory laid out by scope.
func importDir(ctx context.Context, store *prompts.Store, dir string) ([]importResult, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	type entry struct {
		scope prompts.Scope
		id    prompts.Identity
		path  string
	}
	var entries []entry

	global := filepath.Join(dir, "global.md")
	if _, err := os.Stat(global); err == nil {
		entries = append(entries, entry{prompts.ScopeGlobal, prompts.GlobalID(), global})
	}
	clients, _ := filepath.Glob(filepath.Join(dir, "clients", "*.md"))
	for _, p := range clients {
		entries = append(entries, entry{prompts.ScopeClient, prompts.ClientID(stem(p)), p})
	}
	campaigns, _ := filepath.Glob(filepath.Join(dir, "campaigns", "*", "*.md"))
	for _, p := range campaigns {
		client := filepath.Base(filepath.Dir(p))
		entries = append(entries, entry{prompts.ScopeCampaign, prompts.CampaignID(client, stem(p)), p})
	}
	blueprints, _ := filepath.Glob(filepath.Join(dir, "blueprints", "*.md"))
	for _, p := range blueprints {
		entries = append(entries, entry{prompts.ScopeBlueprint, prompts.BlueprintID(stem(p)), p})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no documents found in %s", dir)
	}

	results := make([]importResult, 0, len(entries))
	for _, e := range entries {
		res, err := importFile(ctx, store, e.scope, e.id, e.path)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
