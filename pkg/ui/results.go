package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cmsprobe/cmsprobe/pkg/enumerate"
	"github.com/cmsprobe/cmsprobe/pkg/jsonutil"
	"github.com/cmsprobe/cmsprobe/pkg/scan"
)

const indent = "    "

// RenderResult writes the console report of one scan.
func RenderResult(w io.Writer, res *scan.Result) {
	var b strings.Builder

	title := res.Target
	if res.CMS != "" {
		title = fmt.Sprintf("%s (%s)", res.Target, res.CMS)
	}
	b.WriteString(SectionStyle.Render(title) + "\n")

	if res.Plugins != nil || res.Themes != nil {
		b.WriteString(findings("Plugins", res.Plugins))
		b.WriteString(findings("Themes", res.Themes))
	}

	if v := res.Version; v != nil {
		if v.IsEmpty {
			b.WriteString(marker() + " No version found.\n")
		} else {
			b.WriteString(marker() + " Possible version(s):\n")
			for _, c := range v.Versions {
				b.WriteString(indent + CandidateStyle.Render(c) + "\n")
			}
			if v.Hint != nil {
				b.WriteString(indent + HintStyle.Render(fmt.Sprintf("hint %s from %s", v.Hint.Version, v.Hint.Source)) + "\n")
			}
		}
	}

	if res.Interesting != nil {
		if len(res.Interesting) == 0 {
			b.WriteString(marker() + " No interesting urls found.\n")
		} else {
			b.WriteString(marker() + " Possible interesting urls found:\n")
			for _, f := range res.Interesting {
				b.WriteString(fmt.Sprintf("%s%s - %s\n", indent, DescriptionStyle.Render(f.Description), URLStyle.Render(f.URL)))
			}
		}
	}

	for _, s := range res.Skipped {
		b.WriteString(HintStyle.Render("[-] skipped "+s) + "\n")
	}
	if res.Error != "" {
		b.WriteString(ErrorStyle.Render("[x] "+res.Error) + "\n")
	}

	b.WriteString(fmt.Sprintf("%s Scan finished (%s elapsed)\n\n", marker(), res.Elapsed().Round(time.Millisecond)))
	fmt.Fprint(w, SanitizeString(b.String()))
}

func marker() string {
	return MarkerStyle.Render("[+]")
}

func findings(kind string, found []enumerate.Finding) string {
	if len(found) == 0 {
		return fmt.Sprintf("%s No %s found.\n", marker(), strings.ToLower(kind))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s found:\n", marker(), kind))
	for _, f := range found {
		b.WriteString(fmt.Sprintf("%s%s %s\n", indent, NameStyle.Render(f.Name), URLStyle.Render(f.URL)))
		for _, i := range f.Interesting {
			b.WriteString(fmt.Sprintf("%s%s%s\n", indent, indent, URLStyle.Render(i.URL)))
		}
	}
	return b.String()
}

// WriteJSON writes one JSON document per result, newline separated, so a
// multi-target scan can be streamed.
func WriteJSON(w io.Writer, res *scan.Result) error {
	return jsonutil.NewStreamEncoder(w).Encode(res)
}
