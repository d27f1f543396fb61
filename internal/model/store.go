package model

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"slunerd/internal/logging"
)

// v4Payload is the current serialisation: classifier parameters keyed by the
// canonical item string, with item identities alongside.
type v4Payload struct {
	FeatureIdxs   []FeatureEntry           `json:"feature_idxs"`
	ClserType     string                   `json:"clser_type"`
	Intercepts    map[string]float64       `json:"intercepts,omitempty"`
	Coefs         map[string]SparseVector  `json:"coefs,omitempty"`
	Trees         map[string]*TreeNode     `json:"trees,omitempty"`
	DAIs          map[string]DAIRecord     `json:"dais"`
	FeaturesType  featureTypeList          `json:"features_type"`
	FeaturesSize  int                      `json:"features_size"`
	ClsThresholds map[string]float64       `json:"cls_thresholds"`
	Abstractions  []string                 `json:"abstractions"`
	TrainingRunID string                   `json:"training_run_id,omitempty"`
}

// legacyClassifier is the per-item record of pre-4 formats, which bundled
// the fitted learner with the item.
type legacyClassifier struct {
	DAI       DAIRecord    `json:"dai"`
	Intercept float64      `json:"intercept"`
	Coefs     SparseVector `json:"coefs"`
	Tree      *TreeNode    `json:"tree,omitempty"`
}

// legacyPayload covers versions 0, 1, 2, 3.0, 3.1, DSTC13 and DSTC13.2,
// which differ only in which fields are present.
type legacyPayload struct {
	// FeaturesList was written by version <= 2 and DSTC13 savers but is
	// never consulted; it is ignored on load and not re-emitted.
	FeaturesList json.RawMessage             `json:"features_list,omitempty"`
	FeatureIdxs  []FeatureEntry              `json:"feature_idxs"`
	ClserType    string                      `json:"clser_type,omitempty"`
	Classifiers  map[string]legacyClassifier `json:"classifiers"`
	FeaturesType featureTypeList             `json:"features_type"`
	FeaturesSize int                         `json:"features_size"`
	// ClsThreshold is a scalar up to 3.0 and a per-item map from 3.1.
	ClsThreshold json.RawMessage `json:"cls_threshold,omitempty"`
	Abstractions []string        `json:"abstractions,omitempty"`
}

// featureTypeList accepts both the historical single keyword and the current
// keyword list.
type featureTypeList []string

func (f *featureTypeList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*f = featureTypeList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*f = featureTypeList(many)
	return nil
}

// DefaultThreshold is used for classifiers that were never calibrated.
const DefaultThreshold = 0.5

// Save writes the artefact at the current version. When gz is nil the file
// is gzip-compressed iff the path ends in "gz".
func Save(path string, a *Artifact, gz *bool) error {
	timer := logging.StartTimer(logging.CategoryModel, "model.Save")
	defer timer.Stop()

	useGzip := strings.HasSuffix(path, "gz")
	if gz != nil {
		useGzip = *gz
	}

	payload := v4Payload{
		FeatureIdxs:   a.Features,
		ClserType:     a.ClserType,
		DAIs:          make(map[string]DAIRecord, len(a.Classifiers)),
		FeaturesType:  featureTypeList(a.FeaturesType),
		FeaturesSize:  a.FeaturesSize,
		ClsThresholds: make(map[string]float64, len(a.Classifiers)),
		Abstractions:  a.Abstractions,
		TrainingRunID: a.TrainingRunID,
	}
	if a.ClserType == "logistic" {
		payload.Intercepts = make(map[string]float64, len(a.Classifiers))
		payload.Coefs = make(map[string]SparseVector, len(a.Classifiers))
	} else {
		payload.Trees = make(map[string]*TreeNode, len(a.Classifiers))
	}
	for _, c := range a.Classifiers {
		key := daiRecordKey(c.DAI)
		payload.DAIs[key] = c.DAI
		payload.ClsThresholds[key] = c.Threshold
		if a.ClserType == "logistic" {
			payload.Intercepts[key] = c.Intercept
			payload.Coefs[key] = c.Coefs
		} else {
			payload.Trees[key] = c.Tree
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("model: encoding payload: %w", err)
	}
	data, err := json.Marshal(envelope{Version: CurrentVersion, Payload: raw})
	if err != nil {
		return fmt.Errorf("model: encoding envelope: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("model: creating %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var zw *gzip.Writer
	if useGzip {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("model: writing %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("model: closing gzip stream: %w", err)
		}
	}

	logging.Model("saved model to %s (version %s, %d features, %d classifiers, gzip=%v)",
		path, CurrentVersion, len(a.Features), len(a.Classifiers), useGzip)
	return nil
}

// Load reads an artefact of any supported version, upgrading legacy formats
// in-memory.
func Load(path string) (*Artifact, error) {
	timer := logging.StartTimer(logging.CategoryModel, "model.Load")
	defer timer.Stop()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("model: opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, "gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("model: reading gzip stream of %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("model: reading %s: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("model: decoding %s: %w", path, err)
	}
	if env.Version == "" {
		// Untagged files predate versioning.
		env.Version = "0"
		env.Payload = data
	}

	a, err := decodeVersion(env.Version, env.Payload)
	if err != nil {
		return nil, err
	}
	logging.Model("loaded model from %s (version %s, %d features, %d classifiers)",
		path, env.Version, len(a.Features), len(a.Classifiers))
	return a, nil
}

// decodeVersion picks a payload decoder by the leading version tag.
func decodeVersion(version string, payload json.RawMessage) (*Artifact, error) {
	switch {
	case version == CurrentVersion:
		return decodeV4(payload)
	case version == "0" || version == "1" || version == "2":
		return decodeLegacy(version, payload)
	case strings.HasPrefix(version, "3.") || strings.HasPrefix(version, "DSTC13"):
		return decodeLegacy(version, payload)
	default:
		return nil, &VersionError{Version: version}
	}
}

func decodeV4(raw json.RawMessage) (*Artifact, error) {
	var p v4Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("model: decoding version 4 payload: %w", err)
	}
	a := &Artifact{
		ClserType:     p.ClserType,
		Features:      p.FeatureIdxs,
		FeaturesType:  []string(p.FeaturesType),
		FeaturesSize:  p.FeaturesSize,
		Abstractions:  p.Abstractions,
		TrainingRunID: p.TrainingRunID,
	}
	for key, rec := range p.DAIs {
		c := ClassifierRecord{DAI: rec, Threshold: DefaultThreshold}
		if t, ok := p.ClsThresholds[key]; ok {
			c.Threshold = t
		}
		if p.ClserType == "logistic" {
			c.Intercept = p.Intercepts[key]
			c.Coefs = p.Coefs[key]
		} else {
			c.Tree = p.Trees[key]
		}
		a.Classifiers = append(a.Classifiers, c)
	}
	a.SortClassifiers()
	return a, nil
}

func decodeLegacy(version string, raw json.RawMessage) (*Artifact, error) {
	var p legacyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("model: decoding version %s payload: %w", version, err)
	}

	clserType := p.ClserType
	if version == "0" || version == "1" {
		// Versions before 2 predate the tree learner.
		clserType = "logistic"
	}
	abstractions := p.Abstractions
	if abstractions == nil {
		abstractions = []string{"concrete", "abstract"}
	}

	// Per-item thresholds exist from 3.1 on; older scalars are superseded
	// by the default.
	thresholds := make(map[string]float64)
	if version == "3.1" && len(p.ClsThreshold) > 0 {
		if err := json.Unmarshal(p.ClsThreshold, &thresholds); err != nil {
			return nil, fmt.Errorf("model: decoding version %s thresholds: %w", version, err)
		}
	}

	a := &Artifact{
		ClserType:    clserType,
		Features:     p.FeatureIdxs,
		FeaturesType: []string(p.FeaturesType),
		FeaturesSize: p.FeaturesSize,
		Abstractions: abstractions,
	}
	for key, lc := range p.Classifiers {
		c := ClassifierRecord{
			DAI:       lc.DAI,
			Intercept: lc.Intercept,
			Coefs:     lc.Coefs,
			Tree:      lc.Tree,
			Threshold: DefaultThreshold,
		}
		if t, ok := thresholds[key]; ok {
			c.Threshold = t
		}
		a.Classifiers = append(a.Classifiers, c)
	}
	a.SortClassifiers()
	return a, nil
}
