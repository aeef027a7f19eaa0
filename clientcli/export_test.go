package clientcli

var FilenameFromDisposition = filenameFromDisposition
