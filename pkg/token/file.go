package token

import (
	"fmt"
	"os"
)

// FileTokenizer serves a local file through positioned ReadAt calls. The file
// handle is borrowed: the caller opens and closes it.
type FileTokenizer struct {
	readAtTokenizer
	file *os.File
}

func NewFileTokenizer(file *os.File) (*FileTokenizer, error) {
	fi, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("unable to stat %s: %w", file.Name(), err)
	}

	return &FileTokenizer{
		readAtTokenizer: readAtTokenizer{r: ioReaderAt{file}, size: fi.Size()},
		file:            file,
	}, nil
}

func (t *FileTokenizer) Name() string {
	return t.file.Name()
}
