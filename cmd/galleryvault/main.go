// Command galleryvault is a thin debug harness over the engine facade,
// exercising the same command surface a GUI collaborator would drive
// through IPC (spec §6). Its subcommand layout follows the teacher's
// top-level main.go, which dispatches to one cli.Command per tool rather
// than flattening every flag into a single command.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/sirzenith/galleryvault/engine"
	"github.com/urfave/cli/v3"
)

func main() {
	appDataDir, err := os.UserConfigDir()
	if err != nil {
		appDataDir = "."
	}
	appDataDir = appDataDir + "/galleryvault"

	eng, err := engine.New(appDataDir)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer eng.Close()

	cmd := &cli.Command{
		Name:    "galleryvault",
		Usage:   "debug harness for the gallery download engine",
		Version: "0.1.0",
		Commands: []*cli.Command{
			searchCmd(eng),
			getCmd(eng),
			downloadCmd(eng),
			exportCmd(eng),
			listDownloadedCmd(eng),
			configCmd(eng),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func searchCmd(eng *engine.Engine) *cli.Command {
	var query string
	var page int64

	return &cli.Command{
		Name:  "search",
		Usage: "search the gallery index",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query", Destination: &query, Min: 1, Max: 1},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1, Destination: &page},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			result, err := eng.Search(ctx, query, int(page))
			if err != nil {
				return err
			}
			for _, comic := range result.Comics {
				fmt.Printf("%d\t%s\n", comic.ID, comic.Title)
			}
			fmt.Printf("page %d/%d\n", result.CurrentPage, result.TotalPage)
			return nil
		},
	}
}

func getCmd(eng *engine.Engine) *cli.Command {
	var idStr string

	return &cli.Command{
		Name:  "get",
		Usage: "fetch one gallery descriptor",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Destination: &idStr, Min: 1, Max: 1},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				return fmt.Errorf("invalid gallery id %q: %s", idStr, err)
			}

			comic, err := eng.GetSyncedComic(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("%d: %s (%d pages, downloaded=%v)\n", comic.ID, comic.Title, len(comic.Files), comic.IsDownloaded)
			return nil
		},
	}
}

func downloadCmd(eng *engine.Engine) *cli.Command {
	var idStr string

	return &cli.Command{
		Name:  "download",
		Usage: "download one gallery and block until it finishes",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Destination: &idStr, Min: 1, Max: 1},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				return fmt.Errorf("invalid gallery id %q: %s", idStr, err)
			}

			comic, err := eng.GetComic(ctx, id)
			if err != nil {
				return err
			}

			events := eng.Subscribe()
			if err := eng.CreateDownloadTask(ctx, *comic); err != nil {
				return err
			}

			bar := progressbar.Default(int64(len(comic.Files)))
			for evt := range events {
				if evt.Progress == nil || evt.Progress.ComicID != id {
					continue
				}

				bar.Set(evt.Progress.DownloadedImgCount)

				if evt.Progress.State == "completed" || evt.Progress.State == "failed" || evt.Progress.State == "cancelled" {
					fmt.Printf("\ngallery %d finished: %s\n", id, evt.Progress.State)
					return nil
				}
			}

			return nil
		},
	}
}

func exportCmd(eng *engine.Engine) *cli.Command {
	var idStr string
	var format string

	return &cli.Command{
		Name:  "export",
		Usage: "bundle a completed download into a PDF or CBZ",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Destination: &idStr, Min: 1, Max: 1},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "cbz", Destination: &format},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				return fmt.Errorf("invalid gallery id %q: %s", idStr, err)
			}

			comic, err := eng.GetSyncedComic(ctx, id)
			if err != nil {
				return err
			}

			var path string
			switch format {
			case "pdf":
				path, err = eng.ExportPdf(*comic)
			default:
				path, err = eng.ExportCbz(*comic)
			}
			if err != nil {
				return err
			}

			fmt.Println(path)
			return nil
		},
	}
}

func listDownloadedCmd(eng *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "list-downloaded",
		Usage: "list every gallery with a completed download on disk",
		Action: func(_ context.Context, _ *cli.Command) error {
			comics, err := eng.GetDownloadedComics()
			if err != nil {
				return err
			}
			for _, comic := range comics {
				fmt.Printf("%d\t%s\t%s\n", comic.ID, comic.Title, comic.ComicDownloadDir)
			}
			return nil
		},
	}
}

func configCmd(eng *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the current configuration",
		Action: func(_ context.Context, _ *cli.Command) error {
			cfg := eng.GetConfig()
			fmt.Printf("%+v\n", cfg)
			return nil
		},
	}
}
