package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/downloader/direct"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/taskctx"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

// Input is a parsed link message:
//
//	https://link1
//	https://link2 | name2.mkv
//	[custom name]
//	{zip password}
//	(unzip password)
type Input struct {
	Links         []string
	Filenames     []string
	CustomName    string
	ZipPassword   string
	UnzipPassword string
}

// ParseInput reads the reply to a task prompt. Services that need an output
// name per link take it after a "|" or derive it from the URL path.
func ParseInput(text string, mode taskctx.Mode, service taskctx.Service) (Input, error) {
	var in Input
	var names []string
	named := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if v, ok := enclosed(line, '[', ']'); ok {
			in.CustomName = utils.CleanFilename(v)
			continue
		}
		if v, ok := enclosed(line, '{', '}'); ok {
			in.ZipPassword = v
			continue
		}
		if v, ok := enclosed(line, '(', ')'); ok {
			in.UnzipPassword = v
			continue
		}

		link, name := line, ""
		if i := strings.Index(line, "|"); i >= 0 {
			link = strings.TrimSpace(line[:i])
			name = utils.CleanFilename(strings.TrimSpace(line[i+1:]))
			named = named || name != ""
		}
		if link == "" {
			continue
		}
		in.Links = append(in.Links, link)
		names = append(names, name)
	}

	if len(in.Links) == 0 {
		return Input{}, invalid("no_links", "No links or path provided.")
	}

	if mode == taskctx.ModeDirLeech {
		return parseDirLeech(in)
	}

	if service.RequiresFilenames() {
		for i, name := range names {
			if name != "" {
				continue
			}
			names[i] = utils.CleanFilename(direct.NameFromURL(in.Links[i]))
			if names[i] == "" {
				return Input{}, invalid("missing_filename",
					fmt.Sprintf("Could not derive a filename for link %d. Send it as \"link | name\".", i+1))
			}
		}
		named = true
	}
	if named {
		in.Filenames = names
	}
	return in, nil
}

func parseDirLeech(in Input) (Input, error) {
	if len(in.Links) != 1 {
		return Input{}, invalid("too_many_paths", "Dir-leech takes exactly one local path.")
	}
	path := filepath.Clean(utils.ExpandHome(in.Links[0]))
	if _, err := os.Stat(path); err != nil {
		return Input{}, errors.WrapDomainError(err, errors.ErrorTypeValidation, "path_not_found", "dir-leech path not found").
			WithUserMessage("Directory or file not found: " + path)
	}
	in.Links = []string{path}
	return in, nil
}

func enclosed(line string, open, closing byte) (string, bool) {
	if len(line) < 2 || line[0] != open || line[len(line)-1] != closing {
		return "", false
	}
	return strings.TrimSpace(line[1 : len(line)-1]), true
}

func invalid(code, msg string) error {
	return errors.NewDomainError(errors.ErrorTypeValidation, code, strings.ToLower(msg)).WithUserMessage(msg)
}
