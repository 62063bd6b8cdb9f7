package security

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules é a configuração do Classifier. Todas as listas são comparadas em
// minúsculas, por substring (placeholders: igualdade).
type Rules struct {
	Allow        []string `yaml:"allow"`
	Block        []string `yaml:"block"`
	Placeholders []string `yaml:"placeholders"`
}

func DefaultRules() Rules {
	return Rules{
		Allow: []string{
			"mozilla/5.0",
			"applewebkit/",
			"gecko/",
			"okhttp/",
		},
		Block: []string{
			"curl/", "wget/", "httpie/", "libwww-perl", "lwp-trivial",
			"python-requests", "python-urllib", "python-httpx", "aiohttp",
			"go-http-client", "java/", "apache-httpclient", "node-fetch", "axios/",
			"scrapy", "headlesschrome", "phantomjs", "selenium", "puppeteer", "playwright",
			"sqlmap", "nikto", "nmap", "masscan", "zgrab", "nuclei", "dirbuster",
			"gobuster", "ffuf", "wpscan", "acunetix", "nessus", "openvas", "burp",
			"bot", "crawler", "spider", "scanner",
		},
		Placeholders: []string{
			"", "-", "null", "undefined", "unknown", "none", "*", "user-agent",
		},
	}
}

// LoadRules lê um arquivo YAML de regras. Listas ausentes no arquivo
// herdam os valores de DefaultRules.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read security rules: %w", err)
	}

	var fromFile Rules
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return Rules{}, fmt.Errorf("parse security rules %s: %w", path, err)
	}

	rules := DefaultRules()
	if fromFile.Allow != nil {
		rules.Allow = fromFile.Allow
	}
	if fromFile.Block != nil {
		rules.Block = fromFile.Block
	}
	if fromFile.Placeholders != nil {
		rules.Placeholders = fromFile.Placeholders
	}
	return rules, nil
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
