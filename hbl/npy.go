package hbl

import (
	"os"

	"github.com/sbinet/npyio"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

//ReadNpy reads the content of an npy file into a dense matrix.
func ReadNpy(fileName string) (denseMat *mat.Dense) {
	f, err := os.Open(fileName)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { HandleError(f.Close()) }()

	r, err := npyio.NewReader(f)
	if err != nil {
		log.Fatal(err)
	}

	denseMat = &mat.Dense{}
	HandleError(r.Read(denseMat))
	return
}

//WriteNpy dumps a dense matrix as an npy file.
func WriteNpy(fileName string, m *mat.Dense) {
	dst, err := os.Create(fileName)
	HandleError(err)
	defer func() { HandleError(dst.Close()) }()
	HandleError(npyio.Write(dst, m))
}
