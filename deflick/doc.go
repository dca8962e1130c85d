/*
Package deflick removes temporal flicker from a frame sequence by finding,
for every frame, where its content reappears in neighboring frames at patch
granularity and blending those correspondences into a smoothed output.

Basic usage:

	opts := deflick.Options{
	    Mode:       deflick.ModeBalanced,
	    WindowSize: 15,
	    BatchSize:  2,
	    Seed:       42,
	}
	store, err := deflick.NewFileStore("./checkpoints")
	if err != nil {
	    log.Fatal(err)
	}

	sched, err := deflick.NewScheduler(opts, store, logger)
	if err != nil {
	    log.Fatal(err)
	}

	// src yields input frames by index, sink receives blended frames
	// in strictly increasing order.
	if err := sched.Run(ctx, src, sink); err != nil {
	    log.Fatal(err)
	}

Processing is batched and checkpointed: after an interruption a rerun with
the same configuration resumes from the last committed batch.
*/
package deflick
