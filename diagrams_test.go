package main

import (
	"context"
	"errors"
	"testing"
)

type rendererFunc func(ctx context.Context, encoded string) (string, error)

func (f rendererFunc) RenderDiagram(ctx context.Context, encoded string) (string, error) {
	return f(ctx, encoded)
}

const fakePNGURL = "data:image/png;base64,iVBORw0KGgo="

func TestIsInlineRaster(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"data:image/png;base64,AAAA", true},
		{"data:image/jpeg;base64,AAAA", true},
		{"data:image/svg+xml;base64,AAAA", false},
		{"data:image/png,raw", false},
		{"data:text/plain;base64,AAAA", false},
		{"attachments/d.png", false},
		{"https://example.com/d.png", false},
	}
	for _, tt := range tests {
		if got := isInlineRaster(tt.src); got != tt.want {
			t.Errorf("isInlineRaster(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestDiagramPass_LabelsInlineRasters(t *testing.T) {
	doc := mustDoc(t, `<body>
<img id="a" src="data:image/png;base64,AAAA" alt="whatever">
<img id="b" src="data:image/jpeg;base64,AAAA">
<img id="c" src="data:image/svg+xml;base64,AAAA" alt="vector">
<img id="d" src="attachments/x.png" alt="x.png">
</body>`)

	var st convertStats
	diagramPass(nil, false)(context.Background(), doc, &st)

	for id, want := range map[string]string{"a": "diagram", "b": "diagram", "c": "vector", "d": "x.png"} {
		if got := doc.Find("#" + id).AttrOr("alt", ""); got != want {
			t.Errorf("#%s alt = %q, want %q", id, got, want)
		}
	}
	if st.Diagrams != 2 {
		t.Errorf("Diagrams = %d, want 2", st.Diagrams)
	}
}

func TestDiagramPass_RasterizesDescriptors(t *testing.T) {
	doc := mustDoc(t, `<body>
<div class="mxgraph" data-mxgraph='{"highlight":"#0000ff","xml":"ENCODED-1"}'></div>
<div class="drawio-macro" data-drawio-xml="ENCODED-2"><span>fallback</span></div>
</body>`)

	var got []string
	r := rendererFunc(func(ctx context.Context, encoded string) (string, error) {
		got = append(got, encoded)
		return fakePNGURL, nil
	})

	var st convertStats
	diagramPass(r, false)(context.Background(), doc, &st)

	if len(got) != 2 || got[0] != "ENCODED-1" || got[1] != "ENCODED-2" {
		t.Errorf("renderer saw %v", got)
	}
	if doc.Find("div.mxgraph, [data-drawio-xml]").Length() != 0 {
		t.Errorf("descriptors should be replaced:\n%s", bodyHTML(t, doc))
	}
	imgs := doc.Find(`img[alt="diagram"]`)
	if imgs.Length() != 2 || imgs.First().AttrOr("src", "") != fakePNGURL {
		t.Errorf("expected two diagram images:\n%s", bodyHTML(t, doc))
	}
	if st.DiagramsRasterized != 2 || st.DiagramsFailed != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDiagramPass_FailureKeepsNode(t *testing.T) {
	src := `<body><div class="mxgraph" data-mxgraph='{"xml":"broken"}'>original</div></body>`
	doc := mustDoc(t, src)
	before := bodyHTML(t, doc)

	r := rendererFunc(func(ctx context.Context, encoded string) (string, error) {
		return "", errors.New("drawio: exit status 1")
	})
	var st convertStats
	diagramPass(r, false)(context.Background(), doc, &st)

	if got := bodyHTML(t, doc); got != before {
		t.Errorf("node should be kept on failure:\n%s", got)
	}
	if st.DiagramsFailed != 1 {
		t.Errorf("DiagramsFailed = %d, want 1", st.DiagramsFailed)
	}
}

func TestDiagramPass_Skip(t *testing.T) {
	doc := mustDoc(t, `<body><div class="mxgraph" data-mxgraph='{"xml":"ENC"}'></div></body>`)
	called := false
	r := rendererFunc(func(ctx context.Context, encoded string) (string, error) {
		called = true
		return fakePNGURL, nil
	})

	var st convertStats
	diagramPass(r, true)(context.Background(), doc, &st)

	if called {
		t.Error("renderer should not run with skip set")
	}
	if doc.Find("div.mxgraph").Length() != 1 {
		t.Error("descriptor should be left in place")
	}
}

func TestDiagramDescriptor(t *testing.T) {
	doc := mustDoc(t, `<body>
<div id="a" class="mxgraph" data-mxgraph='{"xml":"X1"}'></div>
<div id="b" class="mxgraph" data-mxgraph='not json'></div>
<div id="c" class="mxgraph" data-mxgraph='{"nav":true}'></div>
<div id="d" data-drawio-xml="X2"></div>
</body>`)
	for id, want := range map[string]string{"a": "X1", "b": "", "c": "", "d": "X2"} {
		if got := diagramDescriptor(doc.Find("#" + id).Get(0)); got != want {
			t.Errorf("#%s descriptor = %q, want %q", id, got, want)
		}
	}
}
