package model

type LastVisit struct {
	LastVisit *Timestamp `json:"last_visit"`
}

func (v *LastVisit) Validate() error { return nil }
