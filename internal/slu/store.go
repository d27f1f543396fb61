package slu

import (
	"slunerd/internal/da"
	"slunerd/internal/features"
	"slunerd/internal/model"
)

// SaveModel exports the trained classifier. With doReduce, features that do
// not influence any classifier's decision are dropped first (logistic models
// only); the in-memory state is updated to match what was written. When gz
// is nil, gzip compression follows the file suffix.
func (c *Classifier) SaveModel(path string, doReduce bool, gz *bool) error {
	artifact := c.toArtifact()
	if doReduce {
		artifact.Reduce()
	}
	if err := model.Save(path, artifact, gz); err != nil {
		return err
	}
	if doReduce {
		// Keep the live model identical to the saved one.
		c.applyArtifact(artifact)
	}
	return nil
}

// LoadModel replaces the classifier's learned state with a stored artefact
// of any supported version.
func (c *Classifier) LoadModel(path string) error {
	artifact, err := model.Load(path)
	if err != nil {
		return err
	}
	c.applyArtifact(artifact)
	return nil
}

func (c *Classifier) toArtifact() *model.Artifact {
	a := &model.Artifact{
		ClserType:     c.clserType,
		FeaturesType:  c.assembler.FeaturesType(),
		FeaturesSize:  c.assembler.FeaturesSize(),
		Abstractions:  c.assembler.Abstractions(),
		TrainingRunID: c.trainingRunID,
	}
	for idx, f := range c.registry.Idx2Feature {
		a.Features = append(a.Features, model.FeatureEntry{Set: f.Set, Tag: f.Tag, Idx: idx})
	}
	for _, item := range c.TrainedDAIs() {
		tc := c.trained[item.Key()]
		a.Classifiers = append(a.Classifiers, model.ClassifierRecord{
			DAI:       daiToRecord(item),
			Intercept: tc.Intercept,
			Coefs:     tc.Coefs,
			Tree:      tc.Tree,
			Threshold: tc.Threshold,
		})
	}
	return a
}

func (c *Classifier) applyArtifact(a *model.Artifact) {
	c.clserType = a.ClserType
	c.assembler = features.NewAssembler(a.FeaturesType, a.FeaturesSize, a.Abstractions)
	c.trainingRunID = a.TrainingRunID

	idx2feature := make([]features.Feature, len(a.Features))
	for _, f := range a.Features {
		idx2feature[f.Idx] = features.Feature{Set: f.Set, Tag: f.Tag}
	}
	c.registry = features.NewFrozenRegistry(idx2feature)

	c.trained = make(map[string]*TrainedClassifier, len(a.Classifiers))
	for _, rec := range a.Classifiers {
		item := daiFromRecord(rec.DAI)
		c.trained[item.Key()] = &TrainedClassifier{
			DAI:       item,
			Intercept: rec.Intercept,
			Coefs:     rec.Coefs,
			Tree:      rec.Tree,
			Threshold: rec.Threshold,
		}
	}
}

func daiToRecord(item da.DialogueActItem) model.DAIRecord {
	return model.DAIRecord{
		ActType:       item.ActType,
		Slot:          item.Slot,
		Value:         item.Value,
		Generic:       item.Generic,
		CategoryLabel: item.CategoryLabel,
		OrigValues:    item.OrigValues,
	}
}

func daiFromRecord(rec model.DAIRecord) da.DialogueActItem {
	item := da.DialogueActItem{
		ActType:       rec.ActType,
		Slot:          rec.Slot,
		Value:         rec.Value,
		Generic:       rec.Generic,
		CategoryLabel: rec.CategoryLabel,
		OrigValues:    rec.OrigValues,
	}
	return item
}
