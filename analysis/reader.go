package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crosstab-io/surveyflow/survey"
)

// MetadataReader resolves the input reference into survey source info
// and variable metadata.
type MetadataReader interface {
	Read(ctx context.Context, input string) (survey.Survey, survey.Metadata, error)
}

// metadataDoc is the JSON shape of a metadata sidecar file.
type metadataDoc struct {
	Survey    survey.Survey             `json:"survey"`
	Variables []survey.VariableMetadata `json:"variables"`
}

// JSONMetadataReader reads variable metadata from a JSON document. A
// .json input is read directly; any other input (such as an SPSS .sav
// data file) is resolved through its sidecar, input + ".meta.json".
// Parsing the binary data file itself stays outside this tool; the
// sidecar is produced by whatever exported the data.
type JSONMetadataReader struct{}

func (JSONMetadataReader) Read(ctx context.Context, input string) (survey.Survey, survey.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return survey.Survey{}, survey.Metadata{}, err
	}

	path := input
	if !strings.EqualFold(filepath.Ext(input), ".json") {
		path = input + ".meta.json"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return survey.Survey{}, survey.Metadata{}, fmt.Errorf("read survey metadata: %w", err)
	}

	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return survey.Survey{}, survey.Metadata{}, fmt.Errorf("parse survey metadata %s: %w", path, err)
	}
	if len(doc.Variables) == 0 {
		return survey.Survey{}, survey.Metadata{}, fmt.Errorf("survey metadata %s declares no variables", path)
	}

	src := doc.Survey
	if src.Name == "" {
		src.Name = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	}
	if src.DataPath == "" {
		src.DataPath = input
	}

	return src, survey.Metadata{Variables: doc.Variables}, nil
}
