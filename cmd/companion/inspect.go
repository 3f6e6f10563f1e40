package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/spf13/cobra"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.glb>",
	Short: "List morph channels and animation length of a glTF asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := gltf.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		printDocument(cmd.OutOrStdout(), doc)

		if d, err := avatar3d.ReadClipDuration(args[0]); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "animation: %s\n", d)
		}
		return nil
	},
}

// printDocument reports which engine channels each morph mesh provides.
func printDocument(w io.Writer, doc *gltf.Document) {
	meshes := avatar3d.MorphMeshes(doc)
	if len(meshes) == 0 {
		fmt.Fprintln(w, "no morph targets")
		return
	}

	known := make(map[string]bool)
	for _, ch := range avatar3d.DefaultChannels() {
		known[string(ch)] = true
	}

	for _, m := range meshes {
		var missing []string
		have := make(map[string]bool, len(m.Channels))
		for _, ch := range m.Channels {
			have[ch] = true
		}
		for name := range known {
			if !have[name] {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)

		fmt.Fprintf(w, "%s: %d channels\n", m.Name, len(m.Channels))
		fmt.Fprintf(w, "  %s\n", strings.Join(m.Channels, " "))
		if len(missing) > 0 {
			fmt.Fprintf(w, "  missing: %s\n", strings.Join(missing, " "))
		}
	}
}
