package digest

import (
	"fmt"
	"html"
	"strings"
	"time"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

const emptyWindowNote = "No new content was added during this period."

const timeLayout = "2006-01-02 15:04 MST"

func renderEmptyText(generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Content Digest\nGenerated %s\n\n", generatedAt.Format(timeLayout))
	b.WriteString(emptyWindowNote)
	b.WriteString("\n")
	return b.String()
}

func renderEmptyHTML(generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("<html><body>\n<h1>Content Digest</h1>\n")
	fmt.Fprintf(&b, "<p>Generated %s</p>\n", generatedAt.Format(timeLayout))
	fmt.Fprintf(&b, "<p>%s</p>\n", emptyWindowNote)
	b.WriteString("</body></html>\n")
	return b.String()
}

func renderText(rec *domain.DigestRecord, docs []ports.ClusterDoc) string {
	byID := docIndex(docs)

	var b strings.Builder
	fmt.Fprintf(&b, "Content Digest\nGenerated %s\n\n", rec.GeneratedAt.Format(timeLayout))

	for _, theme := range rec.Themes {
		fmt.Fprintf(&b, "== %s (%d items) ==\n", theme.Label, len(theme.ItemIDs))
		for _, id := range theme.ItemIDs {
			doc, ok := byID[id]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", doc.Title)
			if doc.Summary != "" && doc.Summary != doc.Title {
				fmt.Fprintf(&b, "  %s\n", doc.Summary)
			}
		}
		b.WriteString("\n")
	}

	if len(rec.Connections) > 0 {
		b.WriteString("Connections:\n")
		for _, conn := range rec.Connections {
			fmt.Fprintf(&b, "- %s <-> %s (shared: %s)\n",
				docTitle(byID, conn.ItemA), docTitle(byID, conn.ItemB),
				strings.Join(conn.Shared, ", "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Total items: %d\n", len(rec.ItemIDs))
	return b.String()
}

func renderHTML(rec *domain.DigestRecord, docs []ports.ClusterDoc) string {
	byID := docIndex(docs)

	var b strings.Builder
	b.WriteString("<html><body>\n<h1>Content Digest</h1>\n")
	fmt.Fprintf(&b, "<p>Generated %s</p>\n", rec.GeneratedAt.Format(timeLayout))

	for _, theme := range rec.Themes {
		fmt.Fprintf(&b, "<h2>%s (%d items)</h2>\n<ul>\n",
			html.EscapeString(theme.Label), len(theme.ItemIDs))
		for _, id := range theme.ItemIDs {
			doc, ok := byID[id]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "<li><strong>%s</strong>", html.EscapeString(doc.Title))
			if doc.Summary != "" && doc.Summary != doc.Title {
				fmt.Fprintf(&b, "<br/>%s", html.EscapeString(doc.Summary))
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ul>\n")
	}

	if len(rec.Connections) > 0 {
		b.WriteString("<h2>Connections</h2>\n<ul>\n")
		for _, conn := range rec.Connections {
			fmt.Fprintf(&b, "<li>%s &harr; %s <em>(%s)</em></li>\n",
				html.EscapeString(docTitle(byID, conn.ItemA)),
				html.EscapeString(docTitle(byID, conn.ItemB)),
				html.EscapeString(strings.Join(conn.Shared, ", ")))
		}
		b.WriteString("</ul>\n")
	}

	fmt.Fprintf(&b, "<p>Total items: %d</p>\n</body></html>\n", len(rec.ItemIDs))
	return b.String()
}

func docIndex(docs []ports.ClusterDoc) map[string]ports.ClusterDoc {
	byID := make(map[string]ports.ClusterDoc, len(docs))
	for _, doc := range docs {
		byID[doc.ItemID] = doc
	}
	return byID
}

func docTitle(byID map[string]ports.ClusterDoc, id string) string {
	if doc, ok := byID[id]; ok && doc.Title != "" {
		return doc.Title
	}
	return id
}
