/*
Package moments is the session layer of the Moments media editor.

It mounts a Capability Engine for one user and one media type, prepares its
asset catalogs, plugins and chrome, binds the editor actions, mirrors undo/redo
availability, offers recovery of a recent draft and keeps the scene saved in
the background.

The engine itself is a port: hosts supply a ports.EngineFactory (the
headless adapter is an in-memory reference implementation) and a
ports.Storage for drafts (memory, file, redis and sqlite adapters are
provided, optionally wrapped in compression and encryption middleware).

# Usage

	editor := moments.New(headless.NewFactory(), memory.NewStore(),
		moments.WithLogger(logging.New(slog.LevelInfo)),
	)

	sess, err := editor.Open(ctx, moments.Host{
		UserID:          "u1",
		MediaType:       domain.MediaImage,
		InitialMediaURL: "https://cdn.example.com/photo.jpg",
		Prompter:        recovery.Always(domain.ChoiceRecover),
		Actions: actions.Callbacks{
			OnExport: func(ctx context.Context, blob []byte, mime string) error {
				return upload(ctx, blob, mime)
			},
		},
	}, device.EnvironmentFromRequest(r))
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Close(ctx)

	_ = sess.RunAction(ctx, actions.Export, nil)

# Lifecycle

Session.Start resolves the device profile, creates the engine and its scene,
runs the asset pipeline, inserts the initial media, registers actions and the
history coordinator, checks for a recoverable draft and finally arms autosave.
Dispose tears everything down in reverse order and releases the engine exactly
once, whatever state the session is in.
*/
package moments
