package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const knowledgeDocLimit = 8000 // characters per document handed to the model

func initKnowledgeTools(knowledgeDir string) []tool.BaseTool {
	var tools []tool.BaseTool

	if kb := initKnowledgeReader(knowledgeDir); kb != nil {
		tools = append(tools, kb)
	}
	if ws := initWebSearch(); ws != nil {
		tools = append(tools, ws)
	}
	return tools
}

// knowledge base reader tool
type knowledgeReader struct {
	dir    string
	loader *file.FileLoader
}

type knowledgeReaderParams struct {
	Document string `json:"document,omitempty"`
}

func initKnowledgeReader(dir string) tool.InvokableTool {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Printf("knowledge base disabled: %s is not a readable directory", dir)
		return nil
	}
	parserExt, err := parser.NewExtParser(context.Background(), &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		log.Printf("knowledge base disabled: %v", err)
		return nil
	}
	loader, err := file.NewFileLoader(context.Background(), &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		log.Printf("knowledge base disabled: %v", err)
		return nil
	}
	reader := &knowledgeReader{dir: dir, loader: loader}
	info := &schema.ToolInfo{
		Name: "knowledge_base",
		Desc: "Read the local knowledge base. Call without arguments to list available documents, " +
			"then call with a document name to read its content.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"document": {
				Desc:     "Name of the document to read; omit to list all documents.",
				Type:     schema.String,
				Required: false,
			},
		}),
	}
	return utils.NewTool(info, reader.run)
}

func (k *knowledgeReader) run(ctx context.Context, params *knowledgeReaderParams) (string, error) {
	name := ""
	if params != nil {
		name = strings.TrimSpace(params.Document)
	}
	if name == "" {
		return k.listDocuments()
	}
	if name != filepath.Base(name) {
		return "", errors.New("document must be a bare file name")
	}
	path := filepath.Join(k.dir, name)
	docs, err := k.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return "", fmt.Errorf("load document %s: %w", name, err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", fmt.Errorf("document %s has no readable text content", name)
	}
	runes := []rune(text)
	if len(runes) > knowledgeDocLimit {
		text = string(runes[:knowledgeDocLimit]) + "\n\n[truncated]"
	}
	return fmt.Sprintf("Document: %s\n\n%s", name, text), nil
}

func (k *knowledgeReader) listDocuments() (string, error) {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return "", fmt.Errorf("list knowledge base: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return "The knowledge base is empty.", nil
	}
	return "Available documents:\n" + strings.Join(names, "\n"), nil
}

// web search fallback tool
type webSearchTool struct {
	google tool.InvokableTool
	duck   tool.InvokableTool
}

type webSearchParams struct {
	Query string `json:"query"`
}

func initWebSearch() tool.InvokableTool {
	googleTool := initGoogleSearch()
	duckTool := initDDGSearch()
	if googleTool == nil && duckTool == nil {
		log.Printf("web search tool disabled: no search providers available")
		return nil
	}

	ws := &webSearchTool{google: googleTool, duck: duckTool}
	info := &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web when the knowledge base has no answer; " +
			"automatically falls back to another provider if needed.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil {
		if result, err := w.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("google search failed: %v", err)
		}
	}
	if w.duck != nil {
		if result, err := w.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("duckduckgo search failed: %v", err)
		}
	}
	return "", errors.New("no search provider succeeded")
}

func initDDGSearch() tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(context.Background(), &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		log.Printf("duckduckgo search tool disabled: %v", err)
		return nil
	}
	return duckTool
}

func initGoogleSearch() tool.InvokableTool {
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleSearchEngineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if googleAPIKey == "" || googleSearchEngineID == "" {
		log.Printf("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(context.Background(), &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         googleAPIKey,
		SearchEngineID: googleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Printf("google search tool disabled: %v", err)
		return nil
	}
	return googleTool
}
