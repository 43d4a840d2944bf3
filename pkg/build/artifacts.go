package build

// ArtifactRecord is an artifact tagged with its position in the workflow.
type ArtifactRecord struct {
	Artifact
	StepIndex   int    `json:"step_index"`
	StepID      string `json:"step_id"`
	UploadIndex int    `json:"upload_index"`
}

// CollectArtifactRecords flattens the artifacts of steps in (step order,
// upload order).
func CollectArtifactRecords(steps []Step) []ArtifactRecord {
	var records []ArtifactRecord
	for i, step := range steps {
		for j, a := range step.Artifacts() {
			records = append(records, ArtifactRecord{
				Artifact:    a,
				StepIndex:   i,
				StepID:      step.ID(),
				UploadIndex: j,
			})
		}
	}
	return records
}

// CollectArtifacts groups artifact paths by type. A type appears only if at
// least one step uploaded to it; repeated uploads are kept.
func CollectArtifacts(steps []Step) map[string][]string {
	result := make(map[string][]string)
	for _, r := range CollectArtifactRecords(steps) {
		result[r.Type] = append(result[r.Type], r.Path)
	}
	return result
}
