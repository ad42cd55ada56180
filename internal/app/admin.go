package app

import (
	"context"
	"fmt"
	"os"
)

// Drop deletes every document of a storage collection. The store warns and
// pauses before deleting; this is an administrative operation, never part of
// a pass.
func (a *App) Drop(ctx context.Context, collection string) error {
	store, _, err := a.openStore()
	if err != nil {
		return err
	}

	deleted, err := store.DropCollection(ctx, collection)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "collection %q dropped (%d documents deleted)\n", collection, deleted)
	return nil
}

// Collections prints the names of all storage collections holding documents.
func (a *App) Collections(ctx context.Context) error {
	store, _, err := a.openStore()
	if err != nil {
		return err
	}

	names, err := store.ListCollectionNames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(os.Stdout, "no collections found")
		return nil
	}

	for _, name := range names {
		fmt.Fprintln(os.Stdout, name)
	}
	return nil
}
