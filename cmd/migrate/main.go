package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aktagon/page-writer/internal/htmlfix"
)

var (
	reSiteHash = regexp.MustCompile(`-([0-9a-f]{8})$`)
	dryRun     bool
	log        *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Maintenance commands for generated site directories",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		log = l.Sugar()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

var repairHeadersCmd = &cobra.Command{
	Use:   "repair-headers <sites-directory>",
	Short: "Remove duplicate document headers from every index.html",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := repairHeaders(args[0], dryRun)
		if err != nil {
			return err
		}
		fmt.Printf("Repaired %d files\n", n)
		return nil
	},
}

var removeDuplicatesCmd = &cobra.Command{
	Use:   "remove-duplicates <sites-directory>",
	Short: "Remove site directories generated more than once for the same plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return removeDuplicates(args[0], bufio.NewReader(os.Stdin), os.Stdout)
	},
}

func init() {
	repairHeadersCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report files that need repair without writing")
	rootCmd.AddCommand(repairHeadersCmd, removeDuplicatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func repairHeaders(sitesDir string, dryRun bool) (int, error) {
	repaired := 0
	err := filepath.WalkDir(sitesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Continue on errors
		}
		if d.IsDir() || d.Name() != "index.html" {
			return nil
		}

		changed, err := repairFile(path, dryRun)
		if err != nil {
			log.Errorf("Error processing %s: %v", path, err)
			return nil
		}
		if changed {
			repaired++
		}
		return nil
	})
	if err != nil {
		return repaired, fmt.Errorf("walking directory: %w", err)
	}
	return repaired, nil
}

func repairFile(path string, dryRun bool) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading file %s: %w", path, err)
	}
	if htmlfix.DoctypeCount(string(content)) <= 1 {
		return false, nil
	}

	fixed := htmlfix.StripDuplicateHeaders(string(content))
	if dryRun {
		log.Infof("Would repair %s", path)
		return true, nil
	}
	log.Infof("Repairing %s", path)
	return true, os.WriteFile(path, []byte(fixed), 0644)
}

// siteHash returns the -hash8 suffix of a site directory name
func siteHash(name string) string {
	matches := reSiteHash.FindStringSubmatch(name)
	if len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

func removeDuplicates(sitesDir string, reader *bufio.Reader, out io.Writer) error {
	entries, err := os.ReadDir(sitesDir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	hashToDirs := make(map[string][]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if hash := siteHash(e.Name()); hash != "" {
			hashToDirs[hash] = append(hashToDirs[hash], filepath.Join(sitesDir, e.Name()))
		}
	}

	hashes := make([]string, 0, len(hashToDirs))
	for h := range hashToDirs {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	totalRemoved := 0
	for _, hash := range hashes {
		dirs := hashToDirs[hash]
		if len(dirs) <= 1 {
			continue
		}

		fmt.Fprintf(out, "\nFound %d duplicates with hash %s:\n", len(dirs), hash)
		for i, dir := range dirs {
			name := filepath.Base(dir)
			if i == 0 {
				fmt.Fprintf(out, "  KEEP: %s\n", name)
				continue
			}

			if confirmDelete(reader, out, dir) {
				if err := os.RemoveAll(dir); err != nil {
					log.Errorf("Error removing %s: %v", dir, err)
				} else {
					totalRemoved++
					fmt.Fprintf(out, "  REMOVED: %s\n", name)
				}
			} else {
				fmt.Fprintf(out, "  SKIP: %s\n", name)
			}
		}
	}

	fmt.Fprintf(out, "\nRemoved %d duplicate sites\n", totalRemoved)
	return nil
}

func confirmDelete(reader *bufio.Reader, out io.Writer, path string) bool {
	for {
		fmt.Fprintf(out, "  DELETE %s? [y/N]: ", filepath.Base(path))
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Fprintln(out, "  Please enter y or n.")
		}
	}
}
