package store

// Job is the durable record for a single download, per the data model in
// spec §3. Optional fields are pointers so an absent value round-trips as
// NULL instead of a sentinel zero value.
type Job struct {
	ID                 int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	URL                string  `gorm:"column:url;not null" json:"url"`
	Status             Status  `gorm:"column:status;index;not null" json:"status"`
	DataConfirmed      bool    `gorm:"column:data_confirmed;not null;default:false" json:"data_confirmed"`
	DetectedOutputFile *string `gorm:"column:detected_output_file" json:"detected_output_file,omitempty"`
	OutputFile         *string `gorm:"column:output_file" json:"output_file,omitempty"`
	TempFile           string  `gorm:"column:temp_file;not null" json:"temp_file"`
	Resumable          bool    `gorm:"column:resumable;not null;default:false" json:"resumable"`
	DateAdded          int64   `gorm:"column:date_added;not null" json:"date_added"`
	DateCompleted      *int64  `gorm:"column:date_completed" json:"date_completed,omitempty"`
	Size               *int64  `gorm:"column:size" json:"size,omitempty"`
}

func (Job) TableName() string {
	return "downloads"
}

// outputName returns whichever of output_file / detected_output_file is set,
// for category-suffix matching. Empty string if neither is known yet.
func (j Job) outputName() string {
	if j.OutputFile != nil && *j.OutputFile != "" {
		return *j.OutputFile
	}
	if j.DetectedOutputFile != nil && *j.DetectedOutputFile != "" {
		return *j.DetectedOutputFile
	}
	return ""
}
