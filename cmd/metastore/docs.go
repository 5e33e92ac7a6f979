package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/metastore"
	"github.com/kailas-cloud/metastore/query"
)

// withClient opens a client for the duration of fn.
func (a *app) withClient(cmd *cobra.Command, fn func(context.Context, *metastore.Client) error) error {
	ctx := cmd.Context()
	client, err := a.newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	return fn(ctx, client)
}

type putArgs struct {
	index, id, tenant string
	data              []byte
	create            bool
}

func newPutCmd(a *app) *cobra.Command {
	var (
		args   putArgs
		data   string
		create bool
	)
	cmd := &cobra.Command{
		Use:   "put INDEX [ID]",
		Short: "Store a JSON document",
		Long:  "Store a JSON document. --data takes inline JSON, @path to read a file, or - for stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, pos []string) error {
			body, err := readData(data, cmd.InOrStdin())
			if err != nil {
				return err
			}
			args.index, args.data, args.create = pos[0], body, create
			if len(pos) == 2 {
				args.id = pos[1]
			}
			return a.withClient(cmd, func(ctx context.Context, c *metastore.Client) error {
				return runPut(ctx, c, cmd.OutOrStdout(), args)
			})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "-", "document JSON, @file or - for stdin")
	cmd.Flags().BoolVar(&create, "create", false, "fail if the document already exists")
	cmd.Flags().StringVar(&args.tenant, "tenant", "", "tenant id")
	return cmd
}

func runPut(ctx context.Context, c *metastore.Client, out io.Writer, args putArgs) error {
	req, err := metastore.NewPutDataObjectRequest(metastore.PutInput{
		Index:             args.index,
		ID:                args.id,
		TenantID:          args.tenant,
		DataObject:        json.RawMessage(args.data),
		OverwriteIfExists: !args.create,
	})
	if err != nil {
		return err
	}
	resp, err := c.Put(ctx, req)
	if err != nil {
		return err
	}
	return printContent(out, resp.Content())
}

type getArgs struct {
	index, id, tenant  string
	includes, excludes []string
}

func newGetCmd(a *app) *cobra.Command {
	var args getArgs
	cmd := &cobra.Command{
		Use:   "get INDEX ID",
		Short: "Fetch a document by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, pos []string) error {
			args.index, args.id = pos[0], pos[1]
			return a.withClient(cmd, func(ctx context.Context, c *metastore.Client) error {
				return runGet(ctx, c, cmd.OutOrStdout(), args)
			})
		},
	}
	cmd.Flags().StringSliceVar(&args.includes, "source-includes", nil, "source fields to return")
	cmd.Flags().StringSliceVar(&args.excludes, "source-excludes", nil, "source fields to omit")
	cmd.Flags().StringVar(&args.tenant, "tenant", "", "tenant id")
	return cmd
}

func runGet(ctx context.Context, c *metastore.Client, out io.Writer, args getArgs) error {
	in := metastore.GetInput{Index: args.index, ID: args.id, TenantID: args.tenant}
	if len(args.includes) > 0 || len(args.excludes) > 0 {
		in.FetchSource = &query.SourceFilter{Includes: args.includes, Excludes: args.excludes}
	}
	req, err := metastore.NewGetDataObjectRequest(in)
	if err != nil {
		return err
	}
	resp, err := c.Get(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Found() {
		return fmt.Errorf("document [%s] not found in index [%s]", args.id, args.index)
	}
	return printContent(out, resp.Content())
}

func newDeleteCmd(a *app) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "delete INDEX ID",
		Short: "Delete a document by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, pos []string) error {
			return a.withClient(cmd, func(ctx context.Context, c *metastore.Client) error {
				return runDelete(ctx, c, cmd.OutOrStdout(), pos[0], pos[1], tenant)
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	return cmd
}

func runDelete(ctx context.Context, c *metastore.Client, out io.Writer, index, id, tenant string) error {
	req, err := metastore.NewDeleteDataObjectRequest(metastore.DeleteInput{Index: index, ID: id, TenantID: tenant})
	if err != nil {
		return err
	}
	resp, err := c.Delete(ctx, req)
	if err != nil {
		return err
	}
	return printContent(out, resp.Content())
}

type searchArgs struct {
	indices []string
	tenant  string
	body    []byte
	size    int
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		args searchArgs
		body string
	)
	cmd := &cobra.Command{
		Use:   "search INDEX[,INDEX...]",
		Short: "Search one or more indices with a query DSL body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			if body != "" {
				data, err := readData(body, cmd.InOrStdin())
				if err != nil {
					return err
				}
				args.body = data
			}
			args.indices = strings.Split(pos[0], ",")
			return a.withClient(cmd, func(ctx context.Context, c *metastore.Client) error {
				return runSearch(ctx, c, cmd.OutOrStdout(), args)
			})
		},
	}
	cmd.Flags().StringVarP(&body, "query", "q", "", "search body JSON, @file or - for stdin (default match all)")
	cmd.Flags().IntVar(&args.size, "size", -1, "maximum number of hits")
	cmd.Flags().StringVar(&args.tenant, "tenant", "", "tenant id, required with multi-tenancy")
	return cmd
}

func runSearch(ctx context.Context, c *metastore.Client, out io.Writer, args searchArgs) error {
	src, err := query.ParseSearchSource(args.body)
	if err != nil {
		return fmt.Errorf("parse search body: %w", err)
	}
	if args.size >= 0 {
		src = src.WithSize(args.size)
	}
	req, err := metastore.NewSearchDataObjectRequest(metastore.SearchInput{
		Indices:  args.indices,
		Source:   src,
		TenantID: args.tenant,
	})
	if err != nil {
		return err
	}
	resp, err := c.Search(ctx, req)
	if err != nil {
		return err
	}
	return printContent(out, resp.Content())
}

// readData resolves a --data style value: inline JSON, @path or - for in.
func readData(v string, in io.Reader) ([]byte, error) {
	switch {
	case v == "-":
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	case strings.HasPrefix(v, "@"):
		data, err := os.ReadFile(v[1:])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", v[1:], err)
		}
		return data, nil
	default:
		return []byte(v), nil
	}
}

func printContent(out io.Writer, c *metastore.Content) error {
	_, err := fmt.Fprintln(out, c.String())
	return err
}
