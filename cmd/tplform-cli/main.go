package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/goliatone/go-tplform"
	"github.com/goliatone/go-tplform/pkg/provider"
	"github.com/goliatone/go-tplform/pkg/schema"
)

func main() {
	templatePath := flag.String("template", "", "template document path, or raw tag-based text with -raw")
	raw := flag.Bool("raw", false, "treat the template file as raw tag-based text")
	schemasDir := flag.String("schemas", "", "directory holding type schemas")
	dataDir := flag.String("data", "", "directory holding data files")
	paramsJSON := flag.String("params", "", "parameters as a JSON object")
	interactive := flag.Bool("interactive", false, "prompt for parameters not supplied via -params")
	printSchema := flag.Bool("print-schema", false, "print the combined schema instead of rendering")
	output := flag.String("output", "", "output file (stdout if empty)")
	forward := flag.Bool("forward", false, "forward rendered output to the configured httpForward endpoint")
	flag.Parse()

	if *templatePath == "" {
		log.Fatalf("missing -template")
	}

	ctx := context.Background()

	var opts []tplform.Option
	if *schemasDir != "" {
		opts = append(opts, tplform.WithSchemaProvider(provider.NewFSProvider(os.DirFS(*schemasDir), ".")))
	}
	if *dataDir != "" {
		opts = append(opts, tplform.WithDataProvider(provider.NewFSProvider(os.DirFS(*dataDir), ".")))
	}

	tpl, err := loadTemplate(ctx, *templatePath, *raw, opts)
	if err != nil {
		log.Fatalf("Failed to load template: %v", err)
	}

	if *printSchema {
		encoded, err := json.MarshalIndent(tpl.CombinedSchema(), "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode schema: %v", err)
		}
		fmt.Println(string(encoded))
		return
	}

	params := map[string]any{}
	if *paramsJSON != "" {
		if err := json.Unmarshal([]byte(*paramsJSON), &params); err != nil {
			log.Fatalf("Invalid -params: %v", err)
		}
	}
	if *interactive {
		if err := promptParameters(tpl, params); err != nil {
			log.Fatalf("Prompt failed: %v", err)
		}
	}

	rendered, err := tpl.Render(ctx, params)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}

	if *forward {
		if err := tpl.Forward(ctx, rendered); err != nil {
			log.Fatalf("Failed to forward output: %v", err)
		}
		fmt.Println("Output forwarded")
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(rendered), 0o644); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
		fmt.Printf("Output written to %s\n", *output)
	} else {
		fmt.Println(rendered)
	}
}

func loadTemplate(ctx context.Context, path string, raw bool, opts []tplform.Option) (*tplform.Template, error) {
	if !raw {
		return tplform.Load(ctx, path, opts...)
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return tplform.FromString(ctx, string(text), opts...)
}

// promptParameters asks for every visible property the caller did not supply.
// Hidden and info properties never prompt; they resolve from defaults and
// expressions during rendering.
func promptParameters(tpl *tplform.Template, params map[string]any) error {
	var promptErr error
	tpl.Schema().Properties.Range(func(name string, frag map[string]any) bool {
		if _, supplied := params[name]; supplied {
			return true
		}
		switch schema.ReadString(frag, "format") {
		case "hidden", "info":
			return true
		}
		value, err := promptOne(name, frag)
		if err != nil {
			promptErr = err
			return false
		}
		if value != nil {
			params[name] = value
		}
		return true
	})
	return promptErr
}

func promptOne(name string, frag map[string]any) (any, error) {
	label := schema.ReadString(frag, "title")
	if label == "" {
		label = name
	}
	if desc := schema.ReadString(frag, "description"); desc != "" {
		label = fmt.Sprintf("%s (%s)", label, desc)
	}

	if schema.ReadString(frag, "format") == "password" {
		var answer string
		err := survey.AskOne(&survey.Password{Message: label}, &answer)
		return answer, err
	}

	if options := enumOptions(frag); len(options) > 0 {
		var answer string
		err := survey.AskOne(&survey.Select{Message: label, Options: options}, &answer)
		return answer, err
	}

	switch schema.ReadString(frag, "type") {
	case "boolean":
		var answer bool
		err := survey.AskOne(&survey.Confirm{Message: label}, &answer)
		return answer, err
	case "number", "integer":
		var answer string
		prompt := &survey.Input{Message: label, Default: defaultString(frag)}
		if err := survey.AskOne(prompt, &answer); err != nil {
			return nil, err
		}
		if strings.TrimSpace(answer) == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(answer, 64)
		if err != nil {
			return nil, fmt.Errorf("property %q expects a number: %w", name, err)
		}
		return parsed, nil
	default:
		var answer string
		err := survey.AskOne(&survey.Input{Message: label, Default: defaultString(frag)}, &answer)
		if err != nil {
			return nil, err
		}
		if answer == "" {
			return nil, nil
		}
		return answer, nil
	}
}

func enumOptions(frag map[string]any) []string {
	return schema.ReadStringSlice(frag, "enum")
}

func defaultString(frag map[string]any) string {
	value, ok := frag["default"]
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
