package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"socialservice/internal/domain"
	"socialservice/internal/engine"
)

func printMembers(items []domain.GroupMember) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Email", "Code", "Status"})
	for _, m := range items {
		tw.AppendRow(table.Row{m.ID, m.Email, m.Code(), m.Status})
	}
	tw.Render()
	return nil
}

func membersCmd() *cobra.Command {
	members := &cobra.Command{Use: "members", Short: "Group membership ledger"}

	members.AddCommand(&cobra.Command{
		Use:   "list <work-id>",
		Short: "List members of a group selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMembers(ctx, id)
				if err != nil {
					return err
				}
				return printMembers(items)
			})
		},
	})

	members.AddCommand(&cobra.Command{
		Use:   "add <work-id> <email>...",
		Short: "Add members to a group selection",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.AddMembers(ctx, currentActor(), id, args[1:])
				if err != nil {
					return err
				}
				return printMembers(items)
			})
		},
	})

	members.AddCommand(&cobra.Command{
		Use:   "status <member-id> <ATTENDED|NOT_ATTENDED>",
		Short: "Record member attendance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SetMemberStatus(ctx, currentActor(), id, domain.AttendanceStatus(args[1]))
				if err != nil {
					return err
				}
				return printMembers([]domain.GroupMember{m})
			})
		},
	})

	members.AddCommand(&cobra.Command{
		Use:   "enrich <work-id>",
		Short: "Resolve members against the academic directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Enrich(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Code", "Name", "Faculty", "Program", "Status", "Diagnostic"})
				for _, m := range items {
					row := table.Row{m.ID, m.Code, "", "", "", m.Status, m.Diagnostic}
					if m.Identity != nil {
						row[2], row[3], row[4] = m.Identity.FullName, m.Identity.Faculty, m.Identity.Program
					}
					tw.AppendRow(row)
				}
				tw.Render()
				return nil
			})
		},
	})

	members.AddCommand(&cobra.Command{
		Use:   "identity <code>",
		Short: "Look up an institutional code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := e.ResolveIdentity(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(id)
				}
				fmt.Printf("%s  %s  (%s / %s)\n", id.Code, id.FullName, id.Faculty, id.Program)
				return nil
			})
		},
	})

	var file string
	doc := &cobra.Command{
		Use:   "document <work-id> <acceptance|certificate> <code>",
		Short: "Store a per-member document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			up, err := readUpload(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.RecordMemberDocument(ctx, currentActor(), id, domain.MemberDocumentKind(args[1]), args[2], up)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	doc.Flags().StringVar(&file, "file", "", "document path")
	members.AddCommand(doc)

	var kind string
	docs := &cobra.Command{
		Use:   "documents <work-id>",
		Short: "List per-member documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMemberDocuments(ctx, id, domain.MemberDocumentKind(kind))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Kind", "Code", "File", "Created"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Kind, d.Code, d.File, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	docs.Flags().StringVar(&kind, "kind", "", "acceptance or certificate")
	members.AddCommand(docs)
	return members
}

func observationCmd() *cobra.Command {
	obs := &cobra.Command{Use: "observations", Short: "Append-only observation log"}

	var category string
	var limit int
	list := &cobra.Command{
		Use:   "list <work-id>",
		Short: "List observations newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListObservations(ctx, id, category, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Category", "Author", "Created", "Body"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.Category, deref(o.AuthorID), o.CreatedAt, o.Body})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&category, "category", "", "category filter")
	list.Flags().IntVar(&limit, "limit", 50, "max rows")
	obs.AddCommand(list)

	var addCategory, body string
	add := &cobra.Command{
		Use:   "add <work-id>",
		Short: "Append an observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.AppendObservation(ctx, currentActor(), id, addCategory, body)
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	add.Flags().StringVar(&addCategory, "category", "", "category")
	add.Flags().StringVar(&body, "body", "", "text")
	obs.AddCommand(add)

	var latestCategory string
	latest := &cobra.Command{
		Use:   "latest <work-id>",
		Short: "Show the latest observation of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.LatestObservation(ctx, id, latestCategory)
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	latest.Flags().StringVar(&latestCategory, "category", "", "category")
	obs.AddCommand(latest)
	return obs
}
