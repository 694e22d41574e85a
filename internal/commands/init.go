package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bit2swaz/tmpsweep"
	"github.com/bit2swaz/tmpsweep/internal/config"
)

type initFlags struct {
	output    string
	force     bool
	root      string
	days      int
	driver    string
	localPath string
	bucket    string
	region    string
	endpoint  string
}

func newInitCommand() *cobra.Command {
	flags := &initFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a tmpsweep.yml configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.output, "output", "o", config.FileName, "where to write the configuration")
	cmd.Flags().BoolVar(&flags.force, "force", false, "overwrite an existing file")
	cmd.Flags().StringVar(&flags.root, "root", "", "retention root inside the store")
	cmd.Flags().IntVar(&flags.days, "days", 0, "retention window in days")
	cmd.Flags().StringVar(&flags.driver, "driver", "", "storage driver: local or s3")
	cmd.Flags().StringVar(&flags.localPath, "path", "", "directory for the local driver")
	cmd.Flags().StringVar(&flags.bucket, "bucket", "", "bucket for the s3 driver")
	cmd.Flags().StringVar(&flags.region, "region", "", "region for the s3 driver")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "custom S3 endpoint (MinIO)")
	return cmd
}

func runInit(cmd *cobra.Command, flags *initFlags) error {
	if _, err := os.Stat(flags.output); err == nil && !flags.force {
		return newExitError(exitConfig, fmt.Errorf("%s already exists", flags.output))
	}

	overrides := map[string]string{}
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("root", "root", flags.root)
	set("days", "window_days", strconv.Itoa(flags.days))
	set("driver", "storage.driver", flags.driver)
	set("path", "storage.local.path", flags.localPath)
	set("bucket", "storage.s3.bucket", flags.bucket)
	set("region", "storage.s3.region", flags.region)
	set("endpoint", "storage.s3.endpoint", flags.endpoint)
	if flags.endpoint != "" {
		overrides["storage.s3.use_path_style"] = "true"
	}

	data, err := renderTemplate(tmpsweep.ConfigTemplate(), overrides)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	cfg := config.Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse rendered config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return newExitError(exitConfig, err)
	}

	if dir := filepath.Dir(flags.output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(flags.output, data, 0o644); err != nil {
		return err
	}
	cmd.Printf("Generated %s\n", filepath.Base(flags.output))
	return nil
}

// renderTemplate sets scalar values in the YAML template, addressed by dotted
// keys, and keeps its comments.
func renderTemplate(tmpl []byte, overrides map[string]string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(tmpl, &doc); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := setScalar(&doc, strings.Split(k, "."), overrides[k]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setScalar(doc *yaml.Node, path []string, value string) error {
	node := doc
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return errors.New("empty template")
		}
		node = node.Content[0]
	}

	for i, key := range path {
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("%s is not a mapping", strings.Join(path[:i], "."))
		}
		var next *yaml.Node
		for j := 0; j+1 < len(node.Content); j += 2 {
			if node.Content[j].Value == key {
				next = node.Content[j+1]
				break
			}
		}
		if next == nil {
			return fmt.Errorf("template has no key %q", strings.Join(path[:i+1], "."))
		}
		node = next
	}

	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%s is not a scalar", strings.Join(path, "."))
	}
	node.Value = value
	return nil
}
