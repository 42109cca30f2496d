package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/squashctl"
	"github.com/solo-io/squash-session/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

const frontMatter = `---
title: "%s"
weight: 5
---
`

// generates the markdown reference for squashctl into the given dir (./docs/cli by default)
func main() {
	outDir := "./docs/cli"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatal(err)
	}

	app, err := squashctl.App(version.Version)
	if err != nil {
		log.Fatal(err)
	}
	disableAutoGenTag(app)

	prepender := func(filename string) string {
		name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return fmt.Sprintf(frontMatter, strings.Replace(name, "_", " ", -1))
	}
	linkHandler := func(name string) string {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	if err := doc.GenMarkdownTreeCustom(app, outDir, prepender, linkHandler); err != nil {
		log.Fatal(err)
	}
	log.Infof("wrote squashctl reference to %v", outDir)
}

func disableAutoGenTag(c *cobra.Command) {
	c.DisableAutoGenTag = true
	for _, c := range c.Commands() {
		disableAutoGenTag(c)
	}
}
