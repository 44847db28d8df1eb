package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/database"
	"github.com/kozaktomas/gatekeeper/internal/database/postgres"
	"github.com/kozaktomas/gatekeeper/internal/encoder"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Bulk-enroll people from a directory of photos",
	Long: `Bulk-enroll every photo in a directory. Each file enrolls one person;
the name is derived from the filename ("john_doe.jpg" enrolls "john doe").
Files that already have an enrolled name are skipped, files where no face
is found are reported at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// nameFromFilename derives an enrollment name from an image filename.
func nameFromFilename(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.ReplaceAll(stem, "-", " ")
	return strings.Join(strings.Fields(stem), " ")
}

func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	files, err := listImageFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in %s", args[0])
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	ctx := context.Background()
	client := encoder.NewClient(cfg.Encoder.URL, cfg.Gate.EncodingDim)
	identityRepo := postgres.NewIdentityRepository(pool)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, skipped int
	var failures []string

	for _, file := range files {
		_ = bar.Add(1)

		name := nameFromFilename(file)
		if name == "" {
			failures = append(failures, fmt.Sprintf("%s: could not derive a name", file))
			continue
		}

		faces, err := encodeFaceFromFile(ctx, client, file)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", file, err))
			continue
		}
		face, err := pickEnrollmentFace(faces, cfg.Gate.EnrollmentPolicy)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", file, err))
			continue
		}

		if _, err := identityRepo.Enroll(ctx, name, face.Encoding, ""); err != nil {
			if errors.Is(err, database.ErrDuplicateName) {
				skipped++
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", file, err))
			continue
		}
		enrolled++
	}

	fmt.Printf("\nEnrolled %d, skipped %d already enrolled, %d failed\n", enrolled, skipped, len(failures))
	for _, failure := range failures {
		fmt.Printf("  %s\n", failure)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d photos failed to enroll", len(failures))
	}
	return nil
}
