package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/lingua/internal/app"
	"github.com/abhisek/lingua/internal/catalog"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List catalog modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cat, _, err := app.LoadContent(cfg.Engine.CatalogDir, nil)
		if err != nil {
			return err
		}

		lang, _ := cmd.Flags().GetString("lang")
		verbose, _ := cmd.Flags().GetBool("verbose")

		var mods []catalog.ModuleView
		if lang == "" {
			mods, err = cat.GetAllModules(lang)
		} else {
			mods, err = cat.GetModulesForLanguage(lang)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(mods) == 0 {
			fmt.Fprintln(out, "No modules found.")
			return nil
		}

		fmt.Fprintf(out, "%-22s  %-36s  %s\n", "ID", "Title", "Languages")
		fmt.Fprintln(out, strings.Repeat("─", 72))
		for _, m := range mods {
			fmt.Fprintf(out, "%-22s  %-36s  %s\n", m.ID, truncate(m.Title, 36), strings.Join(m.SourceLanguages, ","))
			if !verbose {
				continue
			}
			for _, s := range m.Submodules {
				fmt.Fprintf(out, "    %-18s  %-36s  %s\n", s.ID, truncate(s.Title, 36), strings.Join(s.SchemaIDs, ","))
			}
		}
		return nil
	},
}

func init() {
	modulesCmd.Flags().StringP("lang", "l", "", "Only modules offered in this learner language; titles in that language")
	modulesCmd.Flags().BoolP("verbose", "v", false, "Show submodules and their exercise types")
}
