package models

import "time"

// Classification thresholds applied to AnalysisResult scores
const (
	BlurThreshold        = 0.4
	HighQualityThreshold = 0.7
	LowQualityThreshold  = 0.4
	OverexposedLevel     = 0.8
	UnderexposedLevel    = 0.2

	// NeutralScore is used for signals whose absence carries no information
	NeutralScore = 0.5
)

// FaceAngle is the head pose of a detected face in degrees
type FaceAngle struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// AnalysisFields are the raw inputs to NewAnalysisResult
type AnalysisFields struct {
	AssetID           string
	AnalyzedAt        time.Time
	QualityScore      float64
	BlurScore         float64
	BrightnessScore   float64
	ContrastScore     float64
	SaturationScore   float64
	FaceCount         int
	FaceQualityScores []float64
	FaceAngles        []FaceAngle
	IsScreenshot      bool
	IsSelfie          bool
	FeatureVectorHash []byte
}

// AnalysisResult is the outcome of analyzing one asset. Values are built
// once through NewAnalysisResult and are not modified afterwards.
type AnalysisResult struct {
	AssetID           string      `json:"asset_id"`
	AnalyzedAt        time.Time   `json:"analyzed_at"`
	QualityScore      float64     `json:"quality_score"`
	BlurScore         float64     `json:"blur_score"`
	BrightnessScore   float64     `json:"brightness_score"`
	ContrastScore     float64     `json:"contrast_score"`
	SaturationScore   float64     `json:"saturation_score"`
	FaceCount         int         `json:"face_count"`
	FaceQualityScores []float64   `json:"face_quality_scores,omitempty"`
	FaceAngles        []FaceAngle `json:"face_angles,omitempty"`
	IsScreenshot      bool        `json:"is_screenshot"`
	IsSelfie          bool        `json:"is_selfie"`
	FeatureVectorHash []byte      `json:"feature_vector_hash,omitempty"`
}

// NewAnalysisResult clamps every bounded score into [0, 1] and copies the
// slices so the result does not alias caller memory.
func NewAnalysisResult(f AnalysisFields) AnalysisResult {
	faceCount := f.FaceCount
	if faceCount < 0 {
		faceCount = 0
	}

	var faceScores []float64
	if len(f.FaceQualityScores) > 0 {
		faceScores = make([]float64, len(f.FaceQualityScores))
		for i, s := range f.FaceQualityScores {
			faceScores[i] = Clamp01(s)
		}
	}

	var angles []FaceAngle
	if len(f.FaceAngles) > 0 {
		angles = append([]FaceAngle(nil), f.FaceAngles...)
	}

	var hash []byte
	if len(f.FeatureVectorHash) > 0 {
		hash = append([]byte(nil), f.FeatureVectorHash...)
	}

	return AnalysisResult{
		AssetID:           f.AssetID,
		AnalyzedAt:        f.AnalyzedAt,
		QualityScore:      Clamp01(f.QualityScore),
		BlurScore:         Clamp01(f.BlurScore),
		BrightnessScore:   Clamp01(f.BrightnessScore),
		ContrastScore:     Clamp01(f.ContrastScore),
		SaturationScore:   Clamp01(f.SaturationScore),
		FaceCount:         faceCount,
		FaceQualityScores: faceScores,
		FaceAngles:        angles,
		IsScreenshot:      f.IsScreenshot,
		IsSelfie:          f.IsSelfie,
		FeatureVectorHash: hash,
	}
}

// DegradedResult is substituted for an asset whose analysis failed as a
// whole: quality 0, neutral exposure values, no detector output.
func DegradedResult(assetID string, at time.Time) AnalysisResult {
	return NewAnalysisResult(AnalysisFields{
		AssetID:         assetID,
		AnalyzedAt:      at,
		QualityScore:    0,
		BrightnessScore: NeutralScore,
		ContrastScore:   NeutralScore,
		SaturationScore: NeutralScore,
	})
}

// Sharpness is the inverse of the blur score
func (r AnalysisResult) Sharpness() float64 {
	return 1 - r.BlurScore
}

// IsBlurry reports whether the blur score reaches BlurThreshold
func (r AnalysisResult) IsBlurry() bool {
	return r.BlurScore >= BlurThreshold
}

func (r AnalysisResult) IsHighQuality() bool {
	return r.QualityScore >= HighQualityThreshold
}

func (r AnalysisResult) IsLowQuality() bool {
	return r.QualityScore < LowQualityThreshold
}

func (r AnalysisResult) IsOverexposed() bool {
	return r.BrightnessScore >= OverexposedLevel
}

func (r AnalysisResult) IsUnderexposed() bool {
	return r.BrightnessScore <= UnderexposedLevel
}

// HasProperExposure is true when the asset is neither over- nor underexposed
func (r AnalysisResult) HasProperExposure() bool {
	return !r.IsOverexposed() && !r.IsUnderexposed()
}

// IsDeletionCandidate flags blurry, low quality or badly exposed assets
func (r AnalysisResult) IsDeletionCandidate() bool {
	return r.IsBlurry() || r.IsLowQuality() || !r.HasProperExposure()
}

// HasFeatureVector reports whether feature extraction succeeded
func (r AnalysisResult) HasFeatureVector() bool {
	return len(r.FeatureVectorHash) > 0
}

// BestFaceQuality returns the highest face quality score, or 0 without faces
func (r AnalysisResult) BestFaceQuality() float64 {
	best := 0.0
	for _, s := range r.FaceQualityScores {
		if s > best {
			best = s
		}
	}
	return best
}
