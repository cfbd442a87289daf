package bundle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/cruciblehq/zkb/internal/paths"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/cruciblehq/zkb/internal/shell"
)

//go:embed conanfile.py.tmpl
var conanfileTemplate string

var conanfile = template.Must(template.New("conanfile").Parse(conanfileTemplate))

// Values rendered into the generated recipe.
type recipe struct {
	Class       string
	Name        string
	Version     string
	Description string
}

// Conan reference "name/version@user/channel" of a build.
type conanRef struct {
	name    string
	version string
	user    string
	channel string
}

func (r conanRef) String() string {
	return fmt.Sprintf("%s/%s@%s/%s", r.name, r.version, r.user, r.channel)
}

func (o *Orchestrator) conanRef(build request.Build) conanRef {
	channel := "stock"
	if build.KSU {
		channel = "ksu"
	}
	return conanRef{
		name:    "zkb-" + strings.ToLower(build.Codename),
		version: o.packageVersion(build),
		user:    string(build.Base),
		channel: channel,
	}
}

// Stages the outputs next to a generated recipe and creates the package.
//
// The package is uploaded to the configured remote when upload is set.
func (o *Orchestrator) packConan(ctx context.Context, build request.Build, image, assetDir string, upload bool) (string, error) {
	dir := filepath.Join(o.ws.Bundle(), "conan")
	ref := o.conanRef(build)

	if err := copyFile(image, filepath.Join(dir, "kernel", filepath.Base(image))); err != nil {
		return "", err
	}
	if err := copyTree(assetDir, filepath.Join(dir, "assets")); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err := conanfile.Execute(&buf, recipe{
		Class:       "ZkbConan",
		Name:        ref.name,
		Version:     ref.version,
		Description: fmt.Sprintf("Kernel %s for %s (%s)", build.KernelVersion, build.Codename, build.Base),
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "conanfile.py"), buf.Bytes(), paths.DefaultFileMode); err != nil {
		return "", err
	}

	slog.Info("creating conan package", "reference", ref)
	create := fmt.Sprintf("conan create . --user=%s --channel=%s", shell.Quote(ref.user), shell.Quote(ref.channel))
	if _, err := shell.Run(ctx, o.executor, "conan create", shell.Command{Line: create, Dir: dir}); err != nil {
		return "", err
	}

	if upload {
		slog.Info("uploading conan package", "reference", ref, "remote", o.conanRemote)
		line := fmt.Sprintf("conan upload %s -r %s --confirm", shell.Quote(ref.String()), shell.Quote(o.conanRemote))
		if _, err := shell.Run(ctx, o.executor, "conan upload", shell.Command{Line: line, Dir: dir}); err != nil {
			return "", err
		}
	}

	return dir, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), paths.DefaultDirMode); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Copies the regular files and directories under src into dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, paths.DefaultDirMode)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return nil
		}
	})
}
