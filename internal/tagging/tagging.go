// Package tagging writes ID3 metadata into acquired MP3 files.
package tagging

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bogem/id3v2/v2"

	"github.com/cesargomez89/spotdown/internal/constants"
)

// Metadata is what gets embedded into each track file.
type Metadata struct {
	Title   string
	Artist  string
	Comment string
	Cover   []byte
}

// TagMP3 writes an ID3v2.4 tag with title, artist, comment and front cover.
// Existing frames of the same kind are replaced.
func TagMP3(filePath string, meta Metadata) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	if meta.Title != "" {
		tag.SetTitle(meta.Title)
	}
	if meta.Artist != "" {
		tag.SetArtist(meta.Artist)
	}

	comment := meta.Comment
	if comment == "" {
		comment = constants.DefaultTagComment
	}
	tag.DeleteFrames(tag.CommonID("Comments"))
	tag.AddCommentFrame(id3v2.CommentFrame{
		Encoding:    id3v2.EncodingUTF8,
		Language:    constants.DefaultTagLanguage,
		Description: "",
		Text:        comment,
	})

	if len(meta.Cover) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    coverMimeType(meta.Cover),
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     meta.Cover,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save MP3 tags: %w", err)
	}
	return nil
}

func coverMimeType(data []byte) string {
	mime := http.DetectContentType(data)
	if strings.HasPrefix(mime, "image/") {
		return mime
	}
	return constants.MimeTypeJPEG
}
