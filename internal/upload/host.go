package upload

// Host is the record an upload is attached to.
type Host interface {
	Get(field string) (string, bool)
	Set(field, value string)
	ColumnNames() []string
}

// The hooks below are optional. Each receives the attribute name; an empty
// return falls back to the configured value.

type StoreDirHook interface {
	StoreDir(attr string, f *File) string
}

type TmpDirHook interface {
	TmpDir(attr string, f *File) string
}

type FilenameHook interface {
	Filename(attr string, f *File) string
}

type AfterUploadHook interface {
	AfterUpload(attr string, f *File)
}
