package taskctx

import "path/filepath"

// Paths is the per-task work tree below WORK_PATH.
type Paths struct {
	Work         string
	Down         string
	DirLeechTemp string
	Zip          string
	Unzip        string
	Split        string
	Mirror       string
	// Thumbnail sits next to the work dir so it survives the per-task wipe.
	Thumbnail string
	Report    string
}

func NewPaths(work, mirror string) Paths {
	return Paths{
		Work:         work,
		Down:         filepath.Join(work, "Downloads"),
		DirLeechTemp: filepath.Join(work, "dir_leech_temp"),
		Zip:          filepath.Join(work, "Leeched_Files"),
		Unzip:        filepath.Join(work, "Unzipped_Files"),
		Split:        filepath.Join(work, "Split_Files"),
		Mirror:       mirror,
		Thumbnail:    filepath.Join(filepath.Dir(work), "Thumbnail.jpg"),
		Report:       filepath.Join(work, "download_report.txt"),
	}
}

// WithDownSubdir points Down at a named subfolder so a zip task archives a
// directory with a meaningful name.
func (p Paths) WithDownSubdir(name string) Paths {
	p.Down = filepath.Join(p.Down, name)
	return p
}

// Scratch lists the directories cleaned before each batch.
func (p Paths) Scratch() []string {
	return []string{p.Down, p.Zip, p.Unzip, p.Split}
}
