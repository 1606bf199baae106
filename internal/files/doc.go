// Package files provides the file system helpers the ingester shares.
//
// Discovery lists the feed files of an input directory and pairs each with
// the schema that reads it. Existence probes distinguish "absent" from "could
// not tell", which callers treat differently: an absent optional input is
// fine, an unreadable one is not.
//
// WriteFileAtomic and PublishEntries publish outputs only once they are
// complete:
//
//	err := files.WriteFileAtomic(path, func(f *os.File) error {
//	    _, err := f.Write(data)
//	    return err
//	})
package files
