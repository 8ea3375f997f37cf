package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metalagman/taskflow/internal/reconcile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// batchFile is the on-disk form of an offline operation log.
type batchFile struct {
	Operations []reconcile.Operation `json:"operations" yaml:"operations"`
}

// readBatch loads operations from a JSON or YAML file. Both a bare list and an
// object with an "operations" key are accepted.
func readBatch(path string) ([]reconcile.Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}

	var file batchFile
	if err := unmarshal(data, &file); err == nil && file.Operations != nil {
		return file.Operations, nil
	}
	var ops []reconcile.Operation
	if err := unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("parse batch %s: %w", path, err)
	}
	return ops, nil
}

func syncCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile offline operation logs",
	}
	var file string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Apply a batch of queued operations in order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ops, err := readBatch(file)
			if err != nil {
				return err
			}
			return withApp(opts.cfg, func(a *app) error {
				results := a.sync.Apply(cmd.Context(), opts.actor(), ops)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
				failed := 0
				for _, r := range results {
					if !r.OK {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d operations failed", failed, len(results))
				}
				return nil
			})
		},
	}
	apply.Flags().StringVarP(&file, "file", "f", "", "batch file (.yaml, .yml or .json)")
	_ = apply.MarkFlagRequired("file")
	cmd.AddCommand(apply)
	return cmd
}
