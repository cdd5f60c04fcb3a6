// openapi serves, validates and exports the OpenAPI document of the conflict REST API.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"

	"lerian-mcp-conflicts/internal/api"
	"lerian-mcp-conflicts/internal/docs"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: openapi <command>")
		fmt.Println("Commands:")
		fmt.Println("  serve              - Serve OpenAPI documentation")
		fmt.Println("  validate           - Validate the OpenAPI specification")
		fmt.Println("  generate [json|yaml] - Print the OpenAPI specification")
		os.Exit(1)
	}

	var err error
	switch command := os.Args[1]; command {
	case "serve":
		err = serveDocumentation()
	case "validate":
		err = validateSpec(context.Background(), os.Stdout)
	case "generate":
		format := "yaml"
		if len(os.Args) > 2 {
			format = os.Args[2]
		}
		err = generateSpec(os.Stdout, format)
	default:
		err = fmt.Errorf("unknown command: %s", command)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveDocumentation() error {
	port := os.Getenv("OPENAPI_PORT")
	if port == "" {
		port = "8081"
	}

	fmt.Printf("Serving OpenAPI documentation at http://localhost:%s/docs\n", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newDocsRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return srv.ListenAndServe()
}

func newDocsRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		doc, err := loadSpec()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data, err := doc.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing OpenAPI document: %v", err)
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, swaggerUI)
	}).Methods(http.MethodGet)

	// Redirect root to docs
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
	})

	return router
}

func validateSpec(ctx context.Context, w io.Writer) error {
	doc, err := loadSpec()
	if err != nil {
		return fmt.Errorf("error loading spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintln(w, "✓ OpenAPI specification is valid")
	fmt.Fprintf(w, "\nAPI Statistics:\n")
	fmt.Fprintf(w, "- Paths: %d\n", doc.Paths.Len())
	fmt.Fprintf(w, "- Schemas: %d\n", len(doc.Components.Schemas))
	fmt.Fprintf(w, "- Operations: %d\n", docs.CountOperations(doc))
	return nil
}

func generateSpec(w io.Writer, format string) error {
	gen := docs.NewOpenAPIGenerator(api.Version, os.Getenv("OPENAPI_SERVER_URL"))

	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = gen.GenerateJSON()
	case "yaml", "yml":
		data, err = gen.GenerateYAML()
	default:
		return fmt.Errorf("unsupported format %q (use json or yaml)", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// loadSpec reads OPENAPI_SPEC_PATH when set, otherwise generates the document from the route table
func loadSpec() (*openapi3.T, error) {
	specPath := os.Getenv("OPENAPI_SPEC_PATH")
	if specPath == "" {
		return docs.NewOpenAPIGenerator(api.Version, os.Getenv("OPENAPI_SERVER_URL")).Generate(), nil
	}

	data, err := os.ReadFile(specPath) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	return docs.LoadSpec(data)
}

const swaggerUI = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>MCP Conflict API Documentation</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@4/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@4/swagger-ui-standalone-preset.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: "/openapi.json",
                dom_id: '#swagger-ui',
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIStandalonePreset
                ],
                layout: "StandaloneLayout"
            });
        }
    </script>
</body>
</html>
`
