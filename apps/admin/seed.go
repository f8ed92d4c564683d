package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucidiacare/lucidia/core/face"
	"github.com/lucidiacare/lucidia/core/geo"
	"github.com/lucidiacare/lucidia/core/memory"
	"github.com/lucidiacare/lucidia/core/reminder"
	"github.com/lucidiacare/lucidia/core/user"
	appfs "github.com/lucidiacare/lucidia/fs"
)

const defaultSeedFile = "assets/seed.yaml"

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type seedZone struct {
	Name   string  `yaml:"name"`
	Lat    float64 `yaml:"lat"`
	Lng    float64 `yaml:"lng"`
	Radius float64 `yaml:"radius"`
}

type seedData struct {
	Patient    seedUser               `yaml:"patient"`
	Caretakers []seedUser             `yaml:"caretakers"`
	Faces      []face.NewFace         `yaml:"faces"`
	Memories   []memory.NewMemory     `yaml:"memories"`
	Reminders  []reminder.NewReminder `yaml:"reminders"`
	SafeZones  []seedZone             `yaml:"safe_zones"`
	Location   *geo.Point             `yaml:"location"`
}

func readSeed(file string) (seedData, error) {
	var (
		b   []byte
		err error
	)
	if file == "" {
		b, err = fs.ReadFile(appfs.FS, defaultSeedFile)
	} else {
		b, err = os.ReadFile(file)
	}
	if err != nil {
		return seedData{}, errors.Wrap(err, "reading seed file")
	}

	var data seedData
	if err = yaml.Unmarshal(b, &data); err != nil {
		return seedData{}, errors.Wrap(err, "parsing seed file")
	}
	return data, nil
}

func (cli *commandLine) seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a patient, their caretakers and their care data from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readSeed(file)
			if err != nil {
				return err
			}
			patient, err := cli.seed(cmd, data)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "seeded patient %s (code %s)\n", patient.Email, patient.PatientCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "the seed file; defaults to the bundled demo data")
	return cmd
}

// seed validates every record before saving it, like the API does.
func (cli *commandLine) seed(cmd *cobra.Command, data seedData) (user.User, error) {
	ctx := cmd.Context()

	np := user.NewPatient{
		Name:            data.Patient.Name,
		Email:           data.Patient.Email,
		Password:        data.Patient.Password,
		PasswordConfirm: data.Patient.Password,
	}
	if err := np.Validate(cli.validate, cli.usrSvc); err != nil {
		return user.User{}, errors.Wrap(err, "validating patient")
	}
	patient, err := cli.usrSvc.RegisterPatient(ctx, np)
	if err != nil {
		return user.User{}, errors.Wrap(err, "registering patient")
	}

	for _, ct := range data.Caretakers {
		nc := user.NewCaretaker{
			Name:            ct.Name,
			Email:           ct.Email,
			Password:        ct.Password,
			PasswordConfirm: ct.Password,
			PatientCode:     patient.PatientCode,
		}
		if err = nc.Validate(cli.validate, cli.usrSvc); err != nil {
			return patient, errors.Wrapf(err, "validating caretaker %s", ct.Email)
		}
		if _, err = cli.usrSvc.RegisterCaretaker(ctx, nc); err != nil {
			return patient, errors.Wrapf(err, "registering caretaker %s", ct.Email)
		}
	}

	for _, nf := range data.Faces {
		if err = nf.Validate(cli.validate); err != nil {
			return patient, errors.Wrapf(err, "validating face %q", nf.Name)
		}
		if _, err = cli.faceSvc.Create(ctx, patient.ID, nf); err != nil {
			return patient, errors.Wrap(err, "creating face")
		}
	}

	for _, nm := range data.Memories {
		if err = nm.Validate(cli.validate); err != nil {
			return patient, errors.Wrapf(err, "validating memory %q", nm.Title)
		}
		if _, err = cli.memorySvc.Create(ctx, patient.ID, nm); err != nil {
			return patient, errors.Wrap(err, "creating memory")
		}
	}

	for _, nr := range data.Reminders {
		if err = nr.Validate(cli.validate); err != nil {
			return patient, errors.Wrapf(err, "validating reminder %q", nr.Title)
		}
		if _, err = cli.reminderSvc.Create(ctx, patient.ID, nr); err != nil {
			return patient, errors.Wrap(err, "creating reminder")
		}
	}

	for _, z := range data.SafeZones {
		lat, lng := z.Lat, z.Lng
		nz := geo.NewSafeZone{Name: z.Name, Lat: &lat, Lng: &lng, Radius: z.Radius}
		if err = nz.Validate(cli.validate); err != nil {
			return patient, errors.Wrapf(err, "validating safe zone %q", z.Name)
		}
		if _, err = cli.geoSvc.CreateSafeZone(ctx, patient.ID, nz); err != nil {
			return patient, errors.Wrap(err, "creating safe zone")
		}
	}

	if data.Location != nil {
		if _, err = cli.geoSvc.UpdateLocation(ctx, patient.ID, *data.Location); err != nil {
			return patient, errors.Wrap(err, "setting location")
		}
	}
	return patient, nil
}
