package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"photosweep/internal/models"
	"photosweep/internal/scan"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze individual photos",
	Long: `Analyze one or more photos and print their scores without storing them.

Example:
  photosweep analyze ./IMG_0001.jpg
  photosweep analyze --json a.jpg b.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	e, err := newEngine(nil)
	if err != nil {
		return err
	}

	var results []models.AnalysisResult
	for _, path := range args {
		asset, err := scan.Describe(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if asset.IsVideo() {
			return fmt.Errorf("%s: videos are not analyzed", path)
		}

		r, err := e.AnalyzeOne(cmd.Context(), asset)
		if err != nil {
			return err
		}
		results = append(results, r)

		if !analyzeJSON {
			printAnalysis(asset, r)
		}
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return nil
}

func printAnalysis(asset models.AssetRef, r models.AnalysisResult) {
	fmt.Println(asset.Path)
	fmt.Printf("  Quality:     %.2f%s\n", r.QualityScore, qualityLabel(r))
	fmt.Printf("  Sharpness:   %.2f%s\n", r.Sharpness(), flag(r.IsBlurry(), "blurry"))
	fmt.Printf("  Brightness:  %.2f%s%s\n", r.BrightnessScore,
		flag(r.IsOverexposed(), "overexposed"), flag(r.IsUnderexposed(), "underexposed"))
	fmt.Printf("  Contrast:    %.2f\n", r.ContrastScore)
	fmt.Printf("  Saturation:  %.2f\n", r.SaturationScore)
	fmt.Printf("  Faces:       %d\n", r.FaceCount)
	fmt.Printf("  Screenshot:  %v\n", r.IsScreenshot)
	fmt.Printf("  Selfie:      %v\n", r.IsSelfie)
	if !asset.CreatedAt.IsZero() {
		fmt.Printf("  Taken:       %s\n", asset.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if r.IsDeletionCandidate() {
		fmt.Println("  Deletion candidate")
	}
	fmt.Println()
}

func qualityLabel(r models.AnalysisResult) string {
	switch {
	case r.IsHighQuality():
		return "  (high)"
	case r.IsLowQuality():
		return "  (low)"
	default:
		return ""
	}
}

func flag(on bool, label string) string {
	if on {
		return "  (" + label + ")"
	}
	return ""
}
