// Package watchtrigger watches the roots named in watch.directories for
// new or removed immediate subdirectories and reports them so the
// Master can admit or retire Workers without a restart. It does not
// watch file content — the Scanner still walks each admitted
// directory's files on its own schedule.
package watchtrigger
