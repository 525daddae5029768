package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/client"
	"github.com/Clark-Hu/movie-catalog/internal/logging"
)

// Catalog is the subset of the API client the commands use.
type Catalog interface {
	List(ctx context.Context) ([]client.Movie, error)
	Create(ctx context.Context, title, description string) (client.Movie, error)
	Search(ctx context.Context, term string) ([]client.Movie, error)
	Delete(ctx context.Context, id int64) error
	Rate(ctx context.Context, id int64, rating int) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, newHTTPCatalog); err != nil {
		fmt.Fprintf(os.Stderr, "moviectl: %v\n", err)
		os.Exit(1)
	}
}

func newHTTPCatalog(baseURL string, timeout time.Duration, logger zerolog.Logger) (Catalog, error) {
	c, err := client.New(baseURL, timeout, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type catalogFactory func(baseURL string, timeout time.Duration, logger zerolog.Logger) (Catalog, error)

func run(ctx context.Context, args []string, out io.Writer, newCatalog catalogFactory) error {
	app := kingpin.New("moviectl", "Command-line client for the movie catalog API.")
	app.Terminate(nil)
	app.UsageWriter(out)
	app.ErrorWriter(out)

	var (
		server  = app.Flag("server", "API base URL.").Default("http://localhost:3000").Envar("MOVIES_API_URL").String()
		timeout = app.Flag("timeout", "Request timeout.").Default("5s").Duration()
		verbose = app.Flag("verbose", "Log API errors to stderr.").Short('v').Bool()

		listCmd = app.Command("list", "List every movie.")

		addCmd         = app.Command("add", "Add a movie.")
		addTitle       = addCmd.Arg("title", "Movie title.").Required().String()
		addDescription = addCmd.Arg("description", "Movie description.").Required().String()

		searchCmd  = app.Command("search", "Search titles; an empty term lists everything.")
		searchTerm = searchCmd.Arg("term", "Substring to look for.").Default("").String()

		rateCmd    = app.Command("rate", "Rate a movie from 1 to 5.")
		rateID     = rateCmd.Arg("id", "Movie id.").Required().Int64()
		rateRating = rateCmd.Arg("rating", "Rating, 1-5.").Required().Int()

		deleteCmd = app.Command("delete", "Delete a movie.")
		deleteID  = deleteCmd.Arg("id", "Movie id.").Required().Int64()
	)

	cmd, err := app.Parse(args)
	if err != nil {
		return err
	}

	level := "disabled"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(logging.Config{Level: level, Format: "console", Output: os.Stderr})

	catalog, err := newCatalog(*server, *timeout, logger)
	if err != nil {
		return err
	}

	switch cmd {
	case listCmd.FullCommand():
		movies, err := catalog.List(ctx)
		if err != nil {
			return err
		}
		return printMovies(out, movies)
	case addCmd.FullCommand():
		movie, err := catalog.Create(ctx, *addTitle, *addDescription)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created movie %d\n", movie.ID)
		return nil
	case searchCmd.FullCommand():
		var movies []client.Movie
		if strings.TrimSpace(*searchTerm) == "" {
			movies, err = catalog.List(ctx)
		} else {
			movies, err = catalog.Search(ctx, *searchTerm)
		}
		if err != nil {
			return err
		}
		return printMovies(out, movies)
	case rateCmd.FullCommand():
		if err := catalog.Rate(ctx, *rateID, *rateRating); err != nil {
			return err
		}
		fmt.Fprintf(out, "rated movie %d: %d\n", *rateID, *rateRating)
		return nil
	case deleteCmd.FullCommand():
		if err := catalog.Delete(ctx, *deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted movie %d\n", *deleteID)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printMovies(out io.Writer, movies []client.Movie) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tRATING\tDESCRIPTION")
	for _, m := range movies {
		rating := "-"
		if m.Rating != nil {
			rating = strconv.Itoa(*m.Rating)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.ID, m.Title, rating, m.Description)
	}
	return tw.Flush()
}
