package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/database/postgres"
	"github.com/kozaktomas/gatekeeper/internal/encoder"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image>",
	Short: "Enroll a person from a photo",
	Long: `Enroll a person into the gate from a single photo.
The photo is sent to the face encoder service; the resulting encoding is
stored under the given name. With --whatsapp the person can receive
visitor approval requests on that number.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Name to enroll under (required)")
	enrollCmd.Flags().String("whatsapp", "", "WhatsApp number for approval requests, e.g. +420777123456")
}

// encodeFaceFromFile runs the capture pipeline on an image file and returns
// the detected faces.
func encodeFaceFromFile(ctx context.Context, client *encoder.Client, path string) ([]encoder.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}

	normalized, err := encoder.NormalizeFrame(data)
	if err != nil {
		return nil, fmt.Errorf("could not normalize image: %w", err)
	}

	faces, err := client.DetectFaces(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("could not detect faces: %w", err)
	}
	return faces, nil
}

// pickEnrollmentFace applies the enrollment policy to the detected faces.
func pickEnrollmentFace(faces []encoder.Face, policy string) (*encoder.Face, error) {
	if len(faces) == 0 {
		return nil, encoder.ErrNoFaceDetected
	}
	if len(faces) > 1 && policy == "strict" {
		return nil, fmt.Errorf("image contains %d faces, strict policy requires exactly one", len(faces))
	}
	return &faces[0], nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name := mustGetString(cmd, "name")
	whatsapp := mustGetString(cmd, "whatsapp")
	if name == "" {
		return errors.New("--name is required")
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	ctx := context.Background()
	client := encoder.NewClient(cfg.Encoder.URL, cfg.Gate.EncodingDim)

	faces, err := encodeFaceFromFile(ctx, client, args[0])
	if err != nil {
		return err
	}
	face, err := pickEnrollmentFace(faces, cfg.Gate.EnrollmentPolicy)
	if err != nil {
		return err
	}

	identityRepo := postgres.NewIdentityRepository(pool)
	id, err := identityRepo.Enroll(ctx, name, face.Encoding, whatsapp)
	if err != nil {
		return fmt.Errorf("could not enroll %s: %w", name, err)
	}

	fmt.Printf("Enrolled %s (id %d)\n", name, id)
	return nil
}
